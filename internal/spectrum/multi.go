package spectrum

import (
	"github.com/banshee-data/lockin.scan/internal/monitoring"
	"github.com/banshee-data/lockin.scan/internal/scan"
)

// Multi saves to a primary store and then to any number of secondary ones.
// Only a primary failure is returned, so a retried save never appends the
// same window twice to the primary. Secondary failures are logged.
type Multi struct {
	Primary   scan.SpectrumStore
	Secondary []scan.SpectrumStore
}

// NewMulti creates a Multi.
func NewMulti(primary scan.SpectrumStore, secondary ...scan.SpectrumStore) *Multi {
	return &Multi{Primary: primary, Secondary: secondary}
}

func (m *Multi) Save(destination string, spectrum scan.Spectrum, meta scan.Metadata) error {
	if err := m.Primary.Save(destination, spectrum, meta); err != nil {
		return err
	}
	for _, s := range m.Secondary {
		if err := s.Save(destination, spectrum, meta); err != nil {
			monitoring.Logf("spectrum: secondary store for window %d failed: %v", meta.WindowIndex, err)
		}
	}
	return nil
}
