package obs

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Build describes the running binary.
type Build struct {
	Version string
	Commit  string
	Store   string
}

var (
	buildOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loanadmin_build_info",
			Help: "Always 1; labels carry the loanadmin version, commit, Go runtime and store backend.",
		},
		[]string{"version", "commit", "go_version", "store"},
	)
	startTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loanadmin_start_time_seconds",
		Help: "Unix time the loanadmin process published its build info.",
	})
)

// PublishBuild exports b as loanadmin_build_info and stamps the start time.
// Earlier label sets are dropped so only the current build is reported.
func PublishBuild(b Build) {
	buildOnce.Do(func() {
		prometheus.MustRegister(buildInfo, startTime)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(b.Version, b.Commit, runtime.Version(), b.Store).Set(1)
	startTime.Set(float64(time.Now().Unix()))
	Logger().WithField("version", b.Version).WithField("commit", b.Commit).WithField("store", b.Store).Debug("build info published")
}
