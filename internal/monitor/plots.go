package monitor

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/banshee-data/lockin.scan/internal/fsutil"
	"github.com/banshee-data/lockin.scan/internal/monitoring"
	"github.com/banshee-data/lockin.scan/internal/security"
)

// ServePlots enables GET /plots/{name} for the PNGs rendered into dir.
func (s *Server) ServePlots(files fsutil.FileSystem, dir string) {
	if files == nil {
		files = fsutil.OSFileSystem{}
	}
	s.plotFS = files
	s.plotDir = dir
}

func (s *Server) showPlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.plotDir == "" {
		writeJSONError(w, http.StatusNotFound, "plots are not enabled")
		return
	}
	name := r.PathValue("name")
	if !strings.HasSuffix(name, ".png") {
		writeJSONError(w, http.StatusBadRequest, "plot names end in .png")
		return
	}
	path := filepath.Join(s.plotDir, name)
	if err := security.ValidatePathWithinDirectory(path, s.plotDir); err != nil {
		monitoring.Logf("monitor: rejected plot %q: %v", name, err)
		writeJSONError(w, http.StatusForbidden, "invalid plot path")
		return
	}
	data, err := s.plotFS.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		writeJSONError(w, http.StatusNotFound, "plot not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}
