// Package monitoring serves the state of a running telemetry module over
// HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/uavlink/monitoring/web"
	"github.com/sarchlab/uavlink/queueing"
	"github.com/sarchlab/uavlink/telemetry"
)

// Monitor turns a telemetry module into a server that reports the link
// record, the channels and the queue levels.
type Monitor struct {
	module      *telemetry.Module
	queues      []queueing.Queue
	portNumber  int
	openBrowser bool

	profileDuration time.Duration

	server *http.Server
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		profileDuration: time.Second,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser sets if the monitor opens its page in a browser on start.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// RegisterModule registers the telemetry module to be monitored.
func (m *Monitor) RegisterModule(module *telemetry.Module) {
	m.module = module

	m.queues = nil
	for _, c := range module.Channels() {
		m.queues = append(m.queues, c.Lanes().Queues()...)
	}
}

// Router returns the handler that serves the monitoring API and the web page.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/link", m.reportLink)
	r.HandleFunc("/api/status", m.reportStatus)
	r.HandleFunc("/api/list_channels", m.listChannels)
	r.HandleFunc("/api/channel/{name}", m.listChannelDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/queues", m.listQueues)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.Assets()))

	return r
}

// StartServer starts the monitor as a web server and returns its address.
func (m *Monitor) StartServer() string {
	actualPort := ":" + strconv.Itoa(m.portNumber)

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring telemetry with %s\n", url)

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			log.Printf("cannot open browser: %v", err)
		}
	}

	return url
}

// Shutdown stops the server started by StartServer.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

type linkRsp struct {
	Status string    `json:"status"`
	Peer   string    `json:"peer"`
	LastRx time.Time `json:"last_rx"`

	TxDataRate float32 `json:"tx_data_rate"`
	RxDataRate float32 `json:"rx_data_rate"`
	TxFailures uint32  `json:"tx_failures"`
	TxRetries  uint32  `json:"tx_retries"`
	RxFailures uint32  `json:"rx_failures"`
}

func (m *Monitor) reportLink(w http.ResponseWriter, _ *http.Request) {
	s := m.module.Status()

	rsp := linkRsp{
		Status:     s.Link.Status.String(),
		Peer:       s.Peer.Status.String(),
		LastRx:     s.LastRx,
		TxDataRate: s.Link.TxDataRate,
		RxDataRate: s.Link.RxDataRate,
		TxFailures: s.Link.TxFailures,
		TxRetries:  s.Link.TxRetries,
		RxFailures: s.Link.RxFailures,
	}

	writeJSON(w, rsp)
}

func (m *Monitor) reportStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.module.Status())
}

func (m *Monitor) listChannels(w http.ResponseWriter, _ *http.Request) {
	names := []string{}
	for _, c := range m.module.Channels() {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listChannelDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	channel := m.findChannelOr404(w, name)
	if channel == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(channel)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	ChannelName string `json:"channel_name,omitempty"`
	FieldName   string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	channel := m.findChannelOr404(w, req.ChannelName)
	if channel == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(channel)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type queueRsp struct {
	Queue   string `json:"queue"`
	Level   int    `json:"level"`
	Cap     int    `json:"cap"`
	Dropped uint64 `json:"dropped"`
}

func (m *Monitor) listQueues(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := queuesParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	rsp := []queueRsp{}
	for _, q := range sortAndSelectQueues(m.queues, sortMethod, limit, offset) {
		rsp = append(rsp, queueRsp{
			Queue:   q.Name(),
			Level:   q.Size(),
			Cap:     q.Capacity(),
			Dropped: q.Dropped(),
		})
	}

	writeJSON(w, rsp)
}

func queuesParseParams(
	r *http.Request,
) (sort string, limit, offset int, err error) {
	sortMethod := r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}

	if sortMethod != "level" && sortMethod != "percent" {
		errStr := fmt.Sprintf(
			"Invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
		return "", 0, 0, errors.New(errStr)
	}

	limit, err = intParam(r, "limit")
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offset, err = intParam(r, "offset")
	if err != nil {
		return sortMethod, limit, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intParam(r *http.Request, name string) (int, error) {
	str := r.URL.Query().Get(name)
	if str == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(str)
	if err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}

	return n, nil
}

func queuePercent(q queueing.Queue) float64 {
	return float64(q.Size()) / float64(q.Capacity())
}

// sortAndSelectQueues orders the queues by fill level. A zero limit selects
// every queue after the offset.
func sortAndSelectQueues(
	queues []queueing.Queue,
	sortMethod string,
	limit, offset int,
) []queueing.Queue {
	sorted := make([]queueing.Queue, len(queues))
	copy(sorted, queues)

	switch sortMethod {
	case "level":
		sort.SliceStable(sorted, func(i, j int) bool {
			sizeI, sizeJ := sorted[i].Size(), sorted[j].Size()
			if sizeI != sizeJ {
				return sizeI > sizeJ
			}

			return queuePercent(sorted[i]) > queuePercent(sorted[j])
		})
	case "percent":
		sort.SliceStable(sorted, func(i, j int) bool {
			percentI, percentJ := queuePercent(sorted[i]), queuePercent(sorted[j])
			if percentI != percentJ {
				return percentI > percentJ
			}

			return sorted[i].Size() > sorted[j].Size()
		})
	default:
		panic("Invalid sort method " + sortMethod)
	}

	if offset > len(sorted) {
		offset = len(sorted)
	}

	end := len(sorted)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return sorted[offset:end]
}

func (m *Monitor) findChannelOr404(
	w http.ResponseWriter,
	name string,
) *telemetry.Channel {
	for _, c := range m.module.Channels() {
		if c.Name() == name {
			return c
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Channel not found"))
	dieOnErr(err)

	return nil
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
