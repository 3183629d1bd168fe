// Package site provides a read-only table of sensors and flowtype
// roles, with a default implementation that loads a small YAML file
// and watches it for changes so a running generator can pick up new
// sensors without restart.
package site

import (
	"fmt"
	"iter"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
)

// FlowtypeID identifies one (class, type) pair.
type FlowtypeID uint32

// Source is the read-only site-configuration surface the core calls.
type Source interface {
	SensorIter(class string) iter.Seq[uint32]
	FlowtypeLookup(class, typ string) (FlowtypeID, bool)
	FlowtypeClassID(ft FlowtypeID) uint32
	GeneratePathname(ft FlowtypeID, sensor uint32, hourTS int64, suffix string) string
}

type flowtypeDef struct {
	Class string `yaml:"class"`
	Type  string `yaml:"type"`
}

type fileSchema struct {
	Sensors    map[string][]uint32    `yaml:"sensors"` // class -> sensor IDs
	Flowtypes  map[string]flowtypeDef `yaml:"flowtypes"`
	ClassIndex map[string]uint32      `yaml:"-"`
}

// Site is the default Source: a YAML-backed table, hot-reloaded via
// fsnotify when the backing file changes.
type Site struct {
	mu       sync.RWMutex
	path     string
	schema   fileSchema
	ftByName map[string]FlowtypeID
	ftByID   map[FlowtypeID]flowtypeDef
	classID  map[string]uint32

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Load reads path and builds a Site. Call Watch afterward to enable
// hot reload.
func Load(path string) (*Site, error) {
	s := &Site{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Site) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return apperr.New(apperr.InvalidArgument, "site", "reload", err)
	}
	var schema fileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return apperr.New(apperr.InvalidArgument, "site", "reload", err)
	}

	ftByName := make(map[string]FlowtypeID)
	ftByID := make(map[FlowtypeID]flowtypeDef)
	classID := make(map[string]uint32)
	var nextClassID uint32
	var id FlowtypeID
	for name, def := range schema.Flowtypes {
		if _, ok := classID[def.Class]; !ok {
			classID[def.Class] = nextClassID
			nextClassID++
		}
		ftByName[fmt.Sprintf("%s/%s", def.Class, def.Type)] = id
		ftByID[id] = def
		id++
		_ = name
	}

	s.mu.Lock()
	s.schema = schema
	s.ftByName = ftByName
	s.ftByID = ftByID
	s.classID = classID
	s.mu.Unlock()
	return nil
}

// Watch starts an fsnotify watch on the backing file, reloading on
// every write event. Call Close to stop watching.
func (s *Site) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return apperr.New(apperr.InvalidArgument, "site", "watch", err)
	}
	if err := w.Add(s.path); err != nil {
		w.Close()
		return apperr.New(apperr.InvalidArgument, "site", "watch", err)
	}
	s.watcher = w
	s.done = make(chan struct{})
	go s.watchLoop()
	return nil
}

func (s *Site) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := s.reload(); err != nil {
					logrus.WithFields(logrus.Fields{
						"component": "site",
						"path":      s.path,
					}).WithError(err).Warn("failed to reload site configuration")
				} else {
					logrus.WithField("path", s.path).Info("reloaded site configuration")
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logrus.WithError(err).Warn("site configuration watcher error")
		case <-s.done:
			return
		}
	}
}

// Close stops the background watch goroutine, if started.
func (s *Site) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}

// SensorIter yields every sensor ID belonging to class.
func (s *Site) SensorIter(class string) iter.Seq[uint32] {
	s.mu.RLock()
	sensors := append([]uint32(nil), s.schema.Sensors[class]...)
	s.mu.RUnlock()
	return func(yield func(uint32) bool) {
		for _, id := range sensors {
			if !yield(id) {
				return
			}
		}
	}
}

// FlowtypeLookup resolves a (class, type) name pair to a FlowtypeID.
func (s *Site) FlowtypeLookup(class, typ string) (FlowtypeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ftByName[fmt.Sprintf("%s/%s", class, typ)]
	return id, ok
}

// FlowtypeClassID returns the class index for ft.
func (s *Site) FlowtypeClassID(ft FlowtypeID) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.ftByID[ft]
	if !ok {
		return 0
	}
	return s.classID[def.Class]
}

// GeneratePathname builds the relative
// <class>/<type>/S<sensor>/<hourTS><suffix> pathname fragment for one
// incremental file; no root directory is prepended.
func (s *Site) GeneratePathname(ft FlowtypeID, sensor uint32, hourTS int64, suffix string) string {
	s.mu.RLock()
	def := s.ftByID[ft]
	s.mu.RUnlock()
	return fmt.Sprintf("%s/%s/S%d/%d%s", def.Class, def.Type, sensor, hourTS, suffix)
}

var _ Source = (*Site)(nil)
