package dataimporter

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/railwatch/railwatch/pkg/dataimporter/cifimport"
	"github.com/railwatch/railwatch/pkg/timetable"
)

const scanInterval = 30 * time.Minute

// AreasConfig lists the locations whose schedules we keep. An empty
// list imports the whole network.
type AreasConfig struct {
	Tiplocs []string `yaml:"tiplocs"`
}

func loadAreasConfig(path string) AreasConfig {
	var config AreasConfig
	if path == "" {
		return config
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to read areas config")

		return config
	}

	if err := yaml.Unmarshal(contents, &config); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to parse areas config")
	}

	return config
}

func importFile(importer *cifimport.Importer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return importer.ProcessExtract(filepath.Base(path), file)
}

// importDirectory processes every extract in the directory in filename
// order, which for timetable extracts matches file reference order.
// Already-applied files skip themselves on the reference check.
func importDirectory(importer *cifimport.Importer, directory string) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		log.Error().Err(err).Str("directory", directory).Msg("Failed to scan extract directory")

		return
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if strings.EqualFold(filepath.Ext(entry.Name()), ".cif") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := importFile(importer, filepath.Join(directory, name)); err != nil {
			log.Error().Err(err).Str("file", name).Msg("Failed to import extract")
		}
	}
}

// watchDirectory rescans for new extracts until the stop channel
// closes.
func watchDirectory(directory string, areasPath string, stop <-chan struct{}) {
	importer := newImporter(areasPath)

	importDirectory(importer, directory)

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			importDirectory(importer, directory)
		}
	}
}

func newImporter(areasPath string) *cifimport.Importer {
	areas := loadAreasConfig(areasPath)

	return cifimport.NewImporter(timetable.NewStore(), areas.Tiplocs)
}
