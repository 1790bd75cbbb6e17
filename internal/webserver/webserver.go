// Package webserver implements the diagnostics server.
package webserver

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"

	"github.com/desertwitch/zipmount/internal/filesystem"
	"github.com/desertwitch/zipmount/internal/logging"
	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

var (
	//go:embed templates/*.html
	templateFS    embed.FS
	indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

	// errInvalidArgument is for an invalid constructor argument.
	errInvalidArgument = errors.New("invalid argument")
)

// FSDashboard is the implementation of the filesystem dashboard.
type FSDashboard struct {
	version string
	fsys    *filesystem.FS
	rbuf    *logging.RingBuffer
}

// NewFSDashboard returns a pointer to a new [FSDashboard].
func NewFSDashboard(fsys *filesystem.FS, rbuf *logging.RingBuffer, version string) (*FSDashboard, error) {
	if fsys == nil {
		return nil, fmt.Errorf("%w: need filesystem", errInvalidArgument)
	}
	if rbuf == nil {
		return nil, fmt.Errorf("%w: need ring buffer", errInvalidArgument)
	}

	return &FSDashboard{
		version: version,
		fsys:    fsys,
		rbuf:    rbuf,
	}, nil
}

// Serve serves the diagnostics dashboard as part of a [http.Server].
func (d *FSDashboard) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: d.dashboardMux()} //nolint:gosec

	go func() {
		defer func() {
			r := recover()
			if r != nil {
				fmt.Fprintf(os.Stderr, "(webserver) PANIC: %v\n", r)
				debug.PrintStack()
			}
		}()
		d.rbuf.Printf("serving dashboard on %s\n", addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.rbuf.Printf("HTTP error: %v\n", err)
		}
	}()

	return srv
}

func (d *FSDashboard) dashboardMux() *mux.Router {
	mux := mux.NewRouter()

	mux.HandleFunc("/", d.dashboardHandler)
	mux.HandleFunc("/metrics.json", d.metricsHandler)
	mux.HandleFunc("/gc", d.gcHandler)
	mux.HandleFunc("/reset", d.resetMetricsHandler)
	mux.HandleFunc("/set/verbose/{value}", d.verboseHandler)

	return mux
}

type fsDashboardData struct {
	AllocBytes          string   `json:"allocBytes"`
	Archive             string   `json:"archive"`
	AvgExtractSpeed     string   `json:"avgExtractSpeed"`
	AvgExtractTime      string   `json:"avgExtractTime"`
	AvgMetadataReadTime string   `json:"avgMetadataReadTime"`
	CachedPath          string   `json:"cachedPath"`
	CachePolicy         string   `json:"cachePolicy"`
	CacheTTL            string   `json:"cacheTtl"`
	ContentsLimit       string   `json:"contentsLimit"`
	Directories         int      `json:"directories"`
	Duplicates          int      `json:"duplicates"`
	Files               int      `json:"files"`
	Logs                []string `json:"logs"`
	MustCRC32           string   `json:"mustCrc32"`
	NumGC               uint32   `json:"numGc"`
	OpenStreams         int64    `json:"openStreams"`
	RingBufferSize      int      `json:"ringBufferSize"`
	StrictDuplicates    string   `json:"strictDuplicates"`
	SysBytes            string   `json:"sysBytes"`
	TotalAlloc          string   `json:"totalAlloc"`
	TotalCacheBypasses  int64    `json:"totalCacheBypasses"`
	TotalCacheEvictions int64    `json:"totalCacheEvictions"`
	TotalCacheHits      int64    `json:"totalCacheHits"`
	TotalCacheMisses    int64    `json:"totalCacheMisses"`
	TotalCacheRatio     string   `json:"totalCacheRatio"`
	TotalClosedStreams  int64    `json:"totalClosedStreams"`
	TotalErrors         int64    `json:"totalErrors"`
	TotalExtractBytes   string   `json:"totalExtractBytes"`
	TotalExtracts       int64    `json:"totalExtracts"`
	TotalMetadatas      int64    `json:"totalMetadatas"`
	TotalOpenedStreams  int64    `json:"totalOpenedStreams"`
	TotalStreamRewinds  int64    `json:"totalStreamRewinds"`
	Uptime              string   `json:"uptime"`
	Verbose             string   `json:"verbose"`
	Version             string   `json:"version"`
}

func (d *FSDashboard) collectMetrics() fsDashboardData {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	lines := d.rbuf.Lines()
	slices.Reverse(lines)

	core := d.fsys.Core()
	tree := core.Tree()

	cached, ok := d.fsys.CachedPath()
	if !ok {
		cached = "-"
	}

	return fsDashboardData{
		AllocBytes:          humanize.IBytes(m.Alloc),
		Archive:             core.ArchivePath(),
		AvgExtractSpeed:     d.avgExtractSpeed(),
		AvgExtractTime:      d.avgExtractTime(),
		AvgMetadataReadTime: d.avgMetadataReadTime(),
		CachedPath:          cached,
		CachePolicy:         core.Options.Policy.String(),
		CacheTTL:            d.cacheTTL(),
		ContentsLimit:       d.contentsLimit(),
		Directories:         tree.Dirs(),
		Duplicates:          tree.Duplicates(),
		Files:               tree.Files(),
		Logs:                lines,
		MustCRC32:           enabledOrDisabled(core.Options.MustCRC32),
		NumGC:               m.NumGC,
		OpenStreams:         core.Metrics.OpenStreams.Load(),
		RingBufferSize:      d.rbuf.Size(),
		StrictDuplicates:    enabledOrDisabled(core.Options.StrictDuplicates),
		SysBytes:            humanize.IBytes(m.Sys),
		TotalAlloc:          humanize.IBytes(m.TotalAlloc),
		TotalCacheBypasses:  core.Metrics.TotalCacheBypasses.Load(),
		TotalCacheEvictions: core.Metrics.TotalCacheEvictions.Load(),
		TotalCacheHits:      core.Metrics.TotalCacheHits.Load(),
		TotalCacheMisses:    core.Metrics.TotalCacheMisses.Load(),
		TotalCacheRatio:     d.totalCacheRatio(),
		TotalClosedStreams:  core.Metrics.TotalClosedStreams.Load(),
		TotalErrors:         core.Metrics.Errors.Load(),
		TotalExtractBytes:   d.totalExtractBytes(),
		TotalExtracts:       core.Metrics.TotalExtractCount.Load(),
		TotalMetadatas:      core.Metrics.TotalMetadataReadCount.Load(),
		TotalOpenedStreams:  core.Metrics.TotalOpenedStreams.Load(),
		TotalStreamRewinds:  core.Metrics.TotalStreamRewinds.Load(),
		Uptime:              humanize.Time(core.MountTime),
		Verbose:             enabledOrDisabled(d.rbuf.Verbose()),
		Version:             d.version,
	}
}

func (d *FSDashboard) dashboardHandler(w http.ResponseWriter, _ *http.Request) {
	data := d.collectMetrics()

	if err := indexTemplate.Execute(w, data); err != nil {
		d.rbuf.Printf("HTTP template execution error: %v\n", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *FSDashboard) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	data := d.collectMetrics()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *FSDashboard) gcHandler(w http.ResponseWriter, _ *http.Request) {
	runtime.GC()
	debug.FreeOSMemory()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	d.rbuf.Printf("GC forced via API, current heap: %s.\n", humanize.IBytes(m.Alloc))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "GC forced, current heap: %s.\n", humanize.IBytes(m.Alloc))
}

func (d *FSDashboard) resetMetricsHandler(w http.ResponseWriter, _ *http.Request) {
	d.fsys.Core().Metrics.Reset()

	d.rbuf.Println("Metrics reset via API.")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Metrics reset.")
}

func (d *FSDashboard) verboseHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	val, err := strconv.ParseBool(vars["value"])
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid boolean value: %v", err), http.StatusBadRequest)

		return
	}
	d.rbuf.SetVerbose(val)

	d.rbuf.Printf("Verbose logging set via API: %t.\n", val)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Verbose logging set: %t.\n", val)
}
