package transfer

import (
	"net/http"
	"testing"
	"time"
)

func TestSegmentCount(t *testing.T) {
	tests := []struct {
		name      string
		size      int64
		requested int
		want      int
	}{
		{"tiny", 1 * KB, 8, 1},
		{"just below 4MiB", 4*MB - 1, 8, 1},
		{"4MiB", 4 * MB, 8, 2},
		{"20MiB with one requested", 20 * MB, 1, 1},
		{"64MiB", 64 * MB, 8, 4},
		{"64MiB with three requested", 64 * MB, 3, 3},
		{"100MiB", 100 * MB, 8, 4},
		{"128MiB", 128 * MB, 8, 8},
		{"1GiB default", 1 * GB, 0, DefaultSegments},
		{"1GiB sixteen", 1 * GB, 16, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SegmentCount(tt.size, tt.requested); got != tt.want {
				t.Fatalf("SegmentCount(%d, %d) = %d, want %d", tt.size, tt.requested, got, tt.want)
			}
		})
	}
}

func TestPlanSegments_100MiB(t *testing.T) {
	size := 100 * MB
	plan := PlanSegments(size, SegmentCount(size, 8))
	if len(plan) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(plan))
	}
	for i, r := range plan {
		if r.Len() != 25*MB {
			t.Errorf("segment %d: expected 25 MiB, got %d", i, r.Len())
		}
		if r.Start != int64(i)*25*MB {
			t.Errorf("segment %d: unexpected start %d", i, r.Start)
		}
	}
}

func TestPlanSegments_RemainderGoesToLast(t *testing.T) {
	plan := PlanSegments(10, 3)
	want := []Range{{0, 2}, {3, 5}, {6, 9}}
	if len(plan) != len(want) {
		t.Fatalf("expected %d ranges, got %d", len(want), len(plan))
	}
	for i := range want {
		if plan[i] != want[i] {
			t.Fatalf("range %d: expected %+v, got %+v", i, want[i], plan[i])
		}
	}
	if PlanSegments(0, 4) != nil {
		t.Fatal("expected no plan for an empty resource")
	}
	if got := PlanSegments(2, 4); len(got) != 2 {
		t.Fatalf("expected segments capped by size, got %d", len(got))
	}
}

func TestThrottle_Allow(t *testing.T) {
	var w throttle
	base := time.Unix(1000, 0)

	if got := w.allow(base, 0, 4096); got != 4096 {
		t.Fatalf("unlimited: expected 4096, got %d", got)
	}
	// elapsed 0 counts as 1ms
	if got := w.allow(base, 1000, 4096); got != 1 {
		t.Fatalf("window start: expected 1, got %d", got)
	}
	w.consume(1)
	if got := w.allow(base.Add(500*time.Millisecond), 1000, 4096); got != 499 {
		t.Fatalf("half window: expected 499, got %d", got)
	}
	w.consume(499)
	if got := w.allow(base.Add(500*time.Millisecond), 1000, 4096); got > 0 {
		t.Fatalf("exhausted: expected <= 0, got %d", got)
	}
	if got := w.allow(base.Add(1000*time.Millisecond), 1000, 4096); got != 1 {
		t.Fatalf("after reset: expected 1, got %d", got)
	}
	if got := w.allow(base.Add(1900*time.Millisecond), 1000, 10); got != 10 {
		t.Fatalf("capped by want: expected 10, got %d", got)
	}
}

func TestRing_DropsOldest(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.push(i)
	}
	got := r.values()
	want := []int{3, 4, 5}
	if r.len() != 3 || len(got) != 3 {
		t.Fatalf("expected 3 values, got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	partial := newRing[string](4)
	partial.push("a")
	if v := partial.values(); len(v) != 1 || v[0] != "a" {
		t.Fatalf("unexpected partial ring %v", v)
	}
}

func TestParseSpeedLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"unlimited", 0, false},
		{"1024", 1024, false},
		{"512KB", 512 * KB, false},
		{"1.5mb", int64(1.5 * float64(MB)), false},
		{"2MB/s", 2 * MB, false},
		{"1 GiB", GB, false},
		{"", 0, true},
		{"-5KB", 0, true},
		{"10XB", 0, true},
		{"KB", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSpeedLimit(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"zero", Options{}, false},
		{"inherit retry", Options{Retry: InheritRetry}, false},
		{"negative segments", Options{Segments: -1}, true},
		{"bad mirror", Options{Mirrors: []string{"ftp://host/file"}}, true},
		{"range header", Options{Network: NetworkOptions{Headers: map[string]string{"Range": "bytes=0-"}}}, true},
		{"retry below -1", Options{Retry: RetryOptions{Max: -2}}, true},
		{"socks proxy", Options{Network: NetworkOptions{Proxy: &ProxyOptions{Scheme: "socks5", Host: "127.0.0.1", Port: 1080}}}, false},
		{"proxy without port", Options{Network: NetworkOptions{Proxy: &ProxyOptions{Host: "proxy"}}}, true},
		{"ftp proxy", Options{Network: NetworkOptions{Proxy: &ProxyOptions{Scheme: "ftp", Host: "p", Port: 21}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseHeaderLines(t *testing.T) {
	h := ParseHeaderLines([]string{"X-Token: abc", "Range: bytes=0-", "broken", " Accept : */* "})
	if len(h) != 2 || h["X-Token"] != "abc" || h["Accept"] != "*/*" {
		t.Fatalf("unexpected headers: %v", h)
	}
}

func TestApplyNetwork(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	applyNetwork(req, &NetworkOptions{
		Cookie:       "a=b",
		AuthUser:     "user",
		AuthPassword: "pass",
		Headers:      map[string]string{"X-Custom": "1", "If-Range": "x"},
	}, DefaultUserAgent)
	if req.Header.Get("User-Agent") != "raad/1.0" {
		t.Errorf("unexpected user agent %q", req.Header.Get("User-Agent"))
	}
	if req.Header.Get("Cookie") != "a=b" || req.Header.Get("X-Custom") != "1" {
		t.Errorf("expected cookie and custom header, got %v", req.Header)
	}
	if u, p, ok := req.BasicAuth(); !ok || u != "user" || p != "pass" {
		t.Errorf("expected basic auth, got %q %q %v", u, p, ok)
	}
	if req.Header.Get("If-Range") != "" {
		t.Error("If-Range must not be settable through custom headers")
	}
}

func TestRedirectPolicy(t *testing.T) {
	policy := redirectPolicy(2)
	prev, _ := http.NewRequest(http.MethodGet, "http://a.example/file", nil)
	next, _ := http.NewRequest(http.MethodGet, "http://b.example/file", nil)
	next.Header.Set("X-Token", "secret")
	next.Header.Set("Range", "bytes=0-9")
	if err := policy(next, []*http.Request{prev}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Header.Get("X-Token") != "" || next.Header.Get("Range") == "" {
		t.Fatalf("expected custom header stripped and Range kept, got %v", next.Header)
	}
	if err := policy(next, []*http.Request{prev, prev}); err == nil {
		t.Fatal("expected hop limit error")
	}
	ftp, _ := http.NewRequest(http.MethodGet, "ftp://a.example/file", nil)
	if err := policy(ftp, []*http.Request{prev}); err == nil {
		t.Fatal("expected cross-protocol error")
	}
}

func TestNewHTTPClient_Proxy(t *testing.T) {
	for _, p := range []*ProxyOptions{
		nil,
		{Host: "127.0.0.1", Port: 8080},
		{Scheme: "socks5", Host: "127.0.0.1", Port: 1080, User: "u", Password: "p"},
	} {
		c, err := NewHTTPClient(p)
		if err != nil {
			t.Fatalf("proxy %+v: unexpected error %v", p, err)
		}
		if c.CheckRedirect == nil {
			t.Fatal("expected a redirect policy")
		}
	}
	if _, err := NewHTTPClient(&ProxyOptions{Scheme: "gopher", Host: "h", Port: 1}); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}

func TestPauseReason_RoundTrip(t *testing.T) {
	for _, r := range []PauseReason{PauseNone, PauseUser, PauseBattery, PauseSchedule, PauseQuota} {
		if got := ParsePauseReason(r.String()); got != r {
			t.Errorf("round trip of %v gave %v", r, got)
		}
	}
	if ParsePauseReason("Something") != PauseUser {
		t.Error("unknown reasons must map to a user pause")
	}
	if PauseUser.IsPolicy() || !PauseQuota.IsPolicy() {
		t.Error("unexpected IsPolicy result")
	}
}
