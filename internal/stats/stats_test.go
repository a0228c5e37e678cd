package stats

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// expvar names are global to the process, so a single test exercises the
// updater end to end.
func TestUpdater(t *testing.T) {
	mux := http.NewServeMux()
	u := NewUpdater(mux)
	assert.NotNil(t, u, "expected Updater to be non-nil")
	assert.NotNil(t, u.updateChan, "expected updateChan to be initialized")

	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")

	u.RegisterMetric("TestMetric")
	u.Run()
	defer u.Stop()

	u.Incr("TestMetric")
	u.Incr("TestMetric")
	u.Decr("TestMetric")

	assert.Eventually(t, func() bool {
		return u.vars.Get("TestMetric").String() == "1"
	}, time.Second, 10*time.Millisecond, "expected metric to settle at 1")
}
