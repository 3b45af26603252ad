package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/uavlink/config"
	"github.com/sarchlab/uavlink/datarecording"
	"github.com/sarchlab/uavlink/flightlog"
	"github.com/sarchlab/uavlink/groundsim"
	"github.com/sarchlab/uavlink/monitoring"
	"github.com/sarchlab/uavlink/telemetry"
	"github.com/sarchlab/uavlink/tracing"
	"github.com/sarchlab/uavlink/transport"
	"github.com/sarchlab/uavlink/uavobj"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the telemetry link against a simulated ground station.",
	Long: "`simulate` registers the configured objects, feeds them with " +
		"fresh values and runs both telemetry channels against a simulated " +
		"ground station until the duration passes or the process is " +
		"interrupted.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		duration, _ := cmd.Flags().GetDuration("duration")

		if cmd.Flags().Changed("monitor") {
			cfg.Monitor.Enabled, _ = cmd.Flags().GetBool("monitor")
		}

		if cmd.Flags().Changed("record") {
			cfg.Recording.Enabled = true
			cfg.Recording.Path, _ = cmd.Flags().GetString("record")
		}

		if cmd.Flags().Changed("verbose") {
			cfg.Log.Verbose, _ = cmd.Flags().GetBool("verbose")
		}

		s, err := newSimulation(cfg, log.Default())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}

		s.run(ctx)

		return s.report()
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().Duration("duration", 0,
		"stop after this long, run until interrupted if zero")
	simulateCmd.Flags().Bool("monitor", false, "serve the HTTP monitor")
	simulateCmd.Flags().String("record", "",
		"record the flight log and link history into this SQLite file")
	simulateCmd.Flags().Bool("verbose", false, "log every dispatched event")
}

type simulation struct {
	cfg      config.Config
	reg      *uavobj.MemRegistry
	sw       *transport.Switch
	station  *groundsim.Station
	feeder   *groundsim.Feeder
	module   *telemetry.Module
	recorder datarecording.DataRecorder
	sink     *flightlog.Sink
	monitor  *monitoring.Monitor
}

func newSimulation(c config.Config, logger *log.Logger) (*simulation, error) {
	s := &simulation{
		cfg: c,
		reg: uavobj.NewMemRegistry(),
	}

	if c.Recording.Enabled {
		recorder, err := datarecording.New(c.Recording.Path)
		if err != nil {
			return nil, err
		}
		s.recorder = recorder
		s.sink = flightlog.NewSink(s.recorder)
		s.reg.WithLogSink(s.sink)
	}

	s.feeder = groundsim.NewFeeder(s.reg)
	for _, o := range c.Objects {
		md, err := o.Metadata()
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", o.Name, err)
		}

		id := s.reg.Register(o.Name, md, o.Priority, o.Instances)
		s.feeder.Add(id, o.Instances, o.Every)
	}

	if err := s.attachDevices(); err != nil {
		return nil, err
	}

	s.station = groundsim.MakeBuilder().
		WithRegistry(s.reg).
		WithLossRate(c.Ground.LossRate).
		WithAnswerRate(c.Ground.AnswerRate).
		WithSeed(c.Ground.Seed).
		Build()

	s.module = telemetry.MakeBuilder().
		WithStore(s.reg).
		WithSwitch(s.sw).
		WithOpener(s.station.Open).
		WithPrimaryPort(c.Ports.Primary).
		WithSecondaryPort(c.Ports.Secondary).
		WithOverridePort(c.Ports.Override).
		WithBaud(c.Link.Baud).
		WithQueueSize(c.Link.QueueSize).
		WithPriorityLane(c.Link.PriorityLane).
		WithRequestTimeout(c.Link.RequestTimeout).
		WithMaxRetries(c.Link.MaxRetries).
		WithStatsPeriod(c.Link.StatsPeriod).
		WithConnectionTimeout(c.Link.ConnectionTimeout).
		Build("Telemetry")

	tracing.Collect(s.module, tracing.NewDispatchLogger(logger, c.Log.Verbose))

	if s.recorder != nil {
		s.module.Monitor().AcceptHook(tracing.NewLinkRecorder(s.recorder))
	}

	if c.Monitor.Enabled {
		s.monitor = monitoring.NewMonitor().
			WithPortNumber(c.Monitor.Port).
			WithBrowser(c.Monitor.Browser)
		s.monitor.RegisterModule(s.module)
	}

	return s, nil
}

// attachDevices puts the serial device on its port and an in-memory pipe on
// every other configured port.
func (s *simulation) attachDevices() error {
	s.sw = transport.NewSwitch()

	ports := []transport.Port{
		s.cfg.Ports.Primary,
		s.cfg.Ports.Secondary,
		s.cfg.Ports.Override,
	}

	for _, p := range ports {
		if p == transport.NoPort || s.sw.Available(p) {
			continue
		}

		if s.cfg.Serial.Device != "" && p == s.cfg.Serial.Port {
			dev, err := transport.OpenSerial(s.cfg.Serial.Device, s.cfg.Link.Baud)
			if err != nil {
				return err
			}

			s.sw.Attach(p, dev)

			continue
		}

		s.sw.Attach(p, transport.NewPipeDevice(256))
	}

	return nil
}

func (s *simulation) run(ctx context.Context) {
	if s.monitor != nil {
		s.monitor.StartServer()
	}

	s.module.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.feeder.Run(ctx)
	}()

	<-ctx.Done()

	s.module.Wait()
	wg.Wait()

	if s.monitor != nil {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), time.Second)
		defer cancel()

		if err := s.monitor.Shutdown(shutdownCtx); err != nil {
			log.Printf("monitor shutdown: %v", err)
		}
	}
}

type report struct {
	Status  telemetry.Status `json:"status"`
	Updates uint64           `json:"updates"`
	Sent    uint64           `json:"sent"`
	Acked   uint64           `json:"acked"`
	Lost    uint64           `json:"lost"`
	Logged  uint64           `json:"logged"`
	Dropped uint64           `json:"dropped_events"`
}

func (s *simulation) report() error {
	r := report{
		Status:  s.module.Status(),
		Updates: s.feeder.Updates(),
		Dropped: s.reg.DroppedEvents(),
	}
	r.Sent, r.Acked, r.Lost = s.station.Counts()

	if s.sink != nil {
		r.Logged = s.sink.Written()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(r); err != nil {
		return err
	}

	if err := s.sw.Close(); err != nil {
		log.Printf("close devices: %v", err)
	}

	if s.recorder != nil {
		return s.recorder.Close()
	}

	return nil
}
