package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nlowe/devpulse/internal/config"
	"github.com/nlowe/devpulse/internal/engine"
	"github.com/nlowe/devpulse/internal/metrics"
	"github.com/nlowe/devpulse/internal/modelperf"
	"github.com/nlowe/devpulse/internal/task"
)

func main() {
	configFlag := flag.String("config", "", "Path to config file (default ~/.config/devpulse/config.toml)")
	replayFlag := flag.String("replay", "", "Replay a JSONL event file into the engine")
	importFlag := flag.String("import", "", "Import a previously exported snapshot before replaying")
	exportFlag := flag.Bool("export", false, "Print the engine snapshot to stdout and exit")
	listenFlag := flag.String("listen", "", "Prometheus metrics listen address (overrides config)")
	flag.Parse()

	var loadResult *config.LoadResult
	var err error
	if *configFlag != "" {
		loadResult, err = config.LoadFrom(*configFlag)
	} else {
		loadResult, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "devpulse: config error: %v\n", err)
		os.Exit(1)
	}
	cfg := loadResult.Config

	for _, w := range loadResult.Warnings {
		fmt.Fprintf(os.Stderr, "devpulse: config warning: %s\n", w)
	}

	eng := engine.New(engine.Options{
		PendingDelay:         time.Duration(cfg.Engine.PendingDelayMS) * time.Millisecond,
		SampleInterval:       time.Duration(cfg.Sampler.IntervalMS) * time.Millisecond,
		ProgressRetention:    cfg.Sampler.ProgressRetention,
		PerformanceRetention: cfg.Sampler.PerformanceRetention,
	})

	if *importFlag != "" {
		data, err := os.ReadFile(*importFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "devpulse: reading snapshot %q: %v\n", *importFlag, err)
			os.Exit(1)
		}
		if !eng.ImportSnapshot(string(data)) {
			fmt.Fprintf(os.Stderr, "devpulse: snapshot rejected: %s\n", eng.LastError().Message)
			os.Exit(1)
		}
	}

	if *replayFlag != "" {
		if err := replayEvents(eng, *replayFlag); err != nil {
			fmt.Fprintf(os.Stderr, "devpulse: replay error: %v\n", err)
			os.Exit(1)
		}
	}

	if *exportFlag {
		snap, err := eng.ExportSnapshot()
		if err != nil {
			fmt.Fprintf(os.Stderr, "devpulse: export error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(snap)
		return
	}

	listen := cfg.Metrics.Listen
	if *listenFlag != "" {
		listen = *listenFlag
	}
	if listen == "" {
		fmt.Fprintln(os.Stderr, "devpulse: nothing to do (no metrics listen address; use -export or [metrics] listen)")
		return
	}

	eng.StartSampling()
	defer eng.StopSampling()

	go startGaugeCollector(eng)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap, err := eng.ExportSnapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, snap)
	})

	srv := &http.Server{Addr: listen, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		eng.EndSession()
		_ = srv.Close()
	}()

	fmt.Fprintf(os.Stderr, "devpulse: serving metrics on %s\n", listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "devpulse: %v\n", err)
		os.Exit(1)
	}
}

// startGaugeCollector periodically pushes the derived view into the
// Prometheus gauges so scrapes see fresh values even between mutations.
func startGaugeCollector(eng *engine.Engine) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		v := eng.View()
		metrics.UpdateProgressGauges(
			v.Derived.ActiveTasks,
			v.Derived.OverallProgress,
			v.Derived.ErrorRate,
			v.Derived.ThroughputPerMinute,
		)
	}
}

// replayEvent is one line of a JSONL replay file. Type selects which
// engine operation runs; the remaining fields are read per type.
type replayEvent struct {
	Type string `json:"type"`

	// task_start / task_update / task_complete / task_cancel
	ID       string            `json:"id"`
	Label    string            `json:"label"`
	Priority string            `json:"priority"`
	Progress *float64          `json:"progress"`
	Success  *bool             `json:"success"`
	Result   string            `json:"result"`
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata"`

	// model_request / model_switch
	Model          string                `json:"model"`
	ResponseTimeMS float64               `json:"responseTimeMs"`
	Tokens         *modelperf.TokenUsage `json:"tokens"`

	// delay pauses replay, letting pending tasks promote and the
	// sampler tick, so replayed timelines resemble live ones.
	DelayMS int `json:"delayMs"`
}

func replayEvents(eng *engine.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Replayed task ids are assigned by the engine; the file's ids map
	// to them so later events can reference earlier tasks.
	idMap := make(map[string]string)

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev replayEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch ev.Type {
		case "task_start":
			id := eng.StartTask(task.Descriptor{
				Label:           ev.Label,
				Priority:        task.Priority(ev.Priority),
				AssociatedModel: ev.Model,
				Metadata:        ev.Metadata,
			})
			if ev.ID != "" {
				idMap[ev.ID] = id
			}
		case "task_update":
			fields := task.Fields{ProgressPercent: ev.Progress}
			if ev.Label != "" {
				fields.Label = &ev.Label
			}
			if err := eng.UpdateTask(resolveID(idMap, ev.ID), fields); err != nil {
				fmt.Fprintf(os.Stderr, "devpulse: replay line %d: %v\n", lineNo, err)
			}
		case "task_complete":
			success := true
			if ev.Success != nil {
				success = *ev.Success
			}
			if err := eng.CompleteTask(resolveID(idMap, ev.ID), success, ev.Result); err != nil {
				fmt.Fprintf(os.Stderr, "devpulse: replay line %d: %v\n", lineNo, err)
			}
		case "task_cancel":
			if err := eng.CancelTask(resolveID(idMap, ev.ID), ev.Reason); err != nil {
				fmt.Fprintf(os.Stderr, "devpulse: replay line %d: %v\n", lineNo, err)
			}
		case "model_request":
			success := true
			if ev.Success != nil {
				success = *ev.Success
			}
			eng.RecordModelRequest(ev.Model, ev.ResponseTimeMS, success, ev.Tokens)
		case "model_switch":
			eng.SwitchModel(ev.Model)
		case "session_start":
			eng.StartSession(ev.ID)
		case "session_end":
			eng.EndSession()
		case "delay":
			if ev.DelayMS > 0 {
				time.Sleep(time.Duration(ev.DelayMS) * time.Millisecond)
			}
		default:
			return fmt.Errorf("line %d: unknown event type %q", lineNo, ev.Type)
		}
	}
	return scanner.Err()
}

func resolveID(idMap map[string]string, id string) string {
	if mapped, ok := idMap[id]; ok {
		return mapped
	}
	return id
}
