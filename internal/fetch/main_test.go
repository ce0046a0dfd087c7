package fetch

import (
	"os"
	"testing"

	"github.com/netflixcritic/checker/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}
