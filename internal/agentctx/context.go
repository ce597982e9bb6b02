// Package agentctx holds the shared, process-wide state the original
// implementation kept as global variables (exe_directory, the logger,
// the service-restart file name). Bundling it into an explicit struct
// passed by reference lets every component that needs it receive it
// through its constructor instead of reaching for package globals.
package agentctx

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/outband/serclient/internal/registry"
)

// restartMarkerName is the fixed file name spec'd in §6: a single GUID
// line used to resume sending a final response after a command that
// requested an agent restart.
const restartMarkerName = "serclient.service"

// Context bundles the logger, root directory, module registry and
// restart marker that cmd/serclient hands to the watcher.
type Context struct {
	Logger   logrus.FieldLogger
	RootDir  string
	Registry *registry.Registry

	restartMarkerPath string
}

// New builds a Context rooted at rootDir, with a default logrus logger
// if logger is nil.
func New(rootDir string, logger logrus.FieldLogger) *Context {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Context{
		Logger:            logger,
		RootDir:           rootDir,
		Registry:          registry.New(rootDir),
		restartMarkerPath: filepath.Join(rootDir, restartMarkerName),
	}
}

// WriteRestartMarker persists guid as the single pending-response
// marker, so that after a restart-triggering command is executed and
// the process comes back up, the response for that GUID can still be
// delivered (spec §6: "at most one file ... carrying a single GUID
// line").
func (c *Context) WriteRestartMarker(guid string) error {
	return os.WriteFile(c.restartMarkerPath, []byte(guid+"\n"), 0o644)
}

// ReadRestartMarker returns the pending GUID, if a marker file exists.
func (c *Context) ReadRestartMarker() (guid string, ok bool) {
	data, err := os.ReadFile(c.restartMarkerPath)
	if err != nil {
		return "", false
	}
	guid = strings.TrimSpace(string(data))
	if guid == "" {
		return "", false
	}
	return guid, true
}

// ClearRestartMarker removes the marker file, if present.
func (c *Context) ClearRestartMarker() error {
	err := os.Remove(c.restartMarkerPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
