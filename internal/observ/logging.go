// Package observ provides the JSON-line event log and the in-process
// metrics registry shared by every orchestration component.
package observ

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	logMu  sync.Mutex
	logOut io.Writer = os.Stdout
)

// Log emits one structured event as a single JSON line.
func Log(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	kv["event"] = event
	b, err := json.Marshal(kv)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"event":%q,"marshal_error":%q}`, event, err.Error()))
	}
	logMu.Lock()
	fmt.Fprintln(logOut, string(b))
	logMu.Unlock()
}

// SetOutput redirects the event log, for tests.
func SetOutput(w io.Writer) {
	logMu.Lock()
	logOut = w
	logMu.Unlock()
}
