// Command orrery-tui runs a simulation in-process and draws it on the
// terminal. Mouse drags orbit the camera, arrows move it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gdamore/tcell/v2"

	"orrery.space/body"
	"orrery.space/config"
	"orrery.space/engine"
	"orrery.space/protocol"
	"orrery.space/scene"
)

func main() {
	configPath := flag.String("config", "orrery.toml", "path to the TOML config file")
	logPath := flag.String("log", "", "write logs to this file")
	flag.Parse()

	if err := run(*configPath, *logPath); err != nil {
		fmt.Fprintf(os.Stderr, "orrery-tui: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// the terminal belongs to tcell, so logs go to a file or nowhere
	var logOut io.Writer = io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	log, err := cfg.Log.Logger(logOut)
	if err != nil {
		return err
	}

	catalog, err := body.ReadCatalogFile(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	sim := cfg.Simulation
	state, err := engine.NewState(scene.NewGraph(), engine.Options{
		Registry:      sim.RegistryOptions(),
		Camera:        cfg.Camera.RigOptions(),
		Catalog:       catalog,
		SpinIncrement: sim.SpinIncrement,
		PathSegments:  sim.PathSegments,
	}, log)
	if err != nil {
		return err
	}
	worker := engine.NewWorker(state, engine.WorkerOptions{
		FrameRate:  sim.FrameRate,
		FrameEvery: 1,
	}, log)

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()
	screen.EnableMouse(tcell.MouseMotionEvents)

	view := NewView(screen, cfg.Camera.FOV)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// same opening sequence as the browser client
	w, h := view.Canvas()
	opening := []protocol.Message{protocol.Canvas{Width: w, Height: h}}
	for _, id := range body.FixedBodies {
		if in, ok := catalog.Find(id); ok {
			opening = append(opening, protocol.BodyData{Body: id, Data: in})
		}
	}
	for _, msg := range opening {
		if err := worker.Send(ctx, msg); err != nil {
			return err
		}
	}

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			msgs, quit := view.Translate(ev)
			if quit {
				cancel()
				<-done
				return nil
			}
			for _, msg := range msgs {
				if err := worker.Send(ctx, msg); err != nil {
					return err
				}
			}
		case msg, ok := <-worker.Outbound():
			if !ok {
				if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
			view.Update(msg)
			if _, isFrame := msg.(protocol.Frame); isFrame {
				view.Draw()
			}
		}
	}
}
