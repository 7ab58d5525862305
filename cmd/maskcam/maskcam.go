package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/fogleman/gg"
	"github.com/maskcam/maskcam/pkg/gen"
	"github.com/maskcam/maskcam/pkg/nn"
	"github.com/maskcam/maskcam/pkg/overlay"
	"github.com/maskcam/maskcam/pkg/perfstats"
	"github.com/maskcam/maskcam/pkg/scheduler"
	"github.com/maskcam/maskcam/server"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("maskcam", "Overlay segmentation and pose detections onto a frame sequence")
	framesDir := parser.String("f", "frames", &argparse.Options{Help: "Directory of encoded frames, ordered by filename", Required: true})
	segURL := parser.String("", "seg", &argparse.Options{Help: "Segmentation inference endpoint URL", Required: true})
	poseURL := parser.String("", "pose", &argparse.Options{Help: "Pose inference endpoint URL", Required: true})
	outDir := parser.String("o", "out", &argparse.Options{Help: "Directory for composited output frames", Required: true})
	viewWidth := parser.Int("", "width", &argparse.Options{Help: "View width", Required: false, Default: 1280})
	viewHeight := parser.Int("", "height", &argparse.Options{Help: "View height", Required: false, Default: 720})
	fps := parser.Int("", "fps", &argparse.Options{Help: "Display/submission rate", Required: false, Default: 30})
	segStride := parser.Int("", "segstride", &argparse.Options{Help: "Run segmentation on every Nth frame", Required: false, Default: 1})
	poseStride := parser.Int("", "posestride", &argparse.Options{Help: "Run pose on every Nth frame", Required: false, Default: 2})
	bgMode := parser.Selector("b", "bgmode", []string{"none", "color", "image", "blur"}, &argparse.Options{Help: "Background mode", Required: false, Default: "none"})
	bgImage := parser.String("", "bgimage", &argparse.Options{Help: "Background image (for bgmode=image)", Required: false})
	sprite := parser.String("s", "sprite", &argparse.Options{Help: "RGBA sprite anchored to the detected face", Required: false})
	listen := parser.String("l", "listen", &argparse.Options{Help: "HTTP listen address, eg :8080 (optional)", Required: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	frames, err := loadFrames(*framesDir)
	check(err)
	if len(frames) == 0 {
		fmt.Printf("No frames found in %v\n", *framesDir)
		os.Exit(1)
	}
	logger.Infof("Loaded %v frames from %v", len(frames), *framesDir)
	check(os.MkdirAll(*outDir, 0755))

	opts := scheduler.DefaultOptions()
	opts.Strides[nn.TaskSegmentation] = int64(*segStride)
	opts.Strides[nn.TaskPose] = int64(*poseStride)
	opts.DisplayInterval = time.Second / time.Duration(*fps)
	opts.TotalFrames = int64(len(frames))
	sched := scheduler.New(logger, nn.NewHTTPPredictor(*segURL), nn.NewHTTPPredictor(*poseURL), opts)

	renderOpts := overlay.DefaultOptions()
	switch *bgMode {
	case "none":
		renderOpts.Background = overlay.BackgroundNone
	case "color":
		renderOpts.Background = overlay.BackgroundColor
		renderOpts.BackgroundColor = color.RGBA{0, 160, 60, 255}
	case "image":
		renderOpts.Background = overlay.BackgroundImage
		if *bgImage == "" {
			fmt.Printf("bgmode=image requires --bgimage\n")
			os.Exit(1)
		}
		img, err := gg.LoadImage(*bgImage)
		check(err)
		renderOpts.BackgroundImage = img
	case "blur":
		renderOpts.Background = overlay.BackgroundBlur
	}
	if *sprite != "" {
		img, err := gg.LoadImage(*sprite)
		check(err)
		renderOpts.Sprite = img
	}
	compositor := overlay.NewCompositor(logger, renderOpts)

	sched.Start()
	defer sched.Stop()

	if *listen != "" {
		srv := server.NewServer(logger, sched)
		go func() {
			if err := srv.ListenAndServe(*listen); err != nil {
				logger.Errorf("HTTP server: %v", err)
			}
		}()
		defer srv.Shutdown()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	// Renderer: every display update becomes a composited PNG. If
	// encoding falls behind the display rate, pending updates are drained
	// and only the freshest is rendered, the same trade the task queues make.
	updates := sched.AddWatcher()
	defer sched.RemoveWatcher(updates)
	go func() {
		renderTime := perfstats.Accumulator{}
		rendered := 0
		for combined := range updates {
			if pending := gen.DrainChannelIntoSlice(updates); len(pending) > 0 {
				combined = pending[len(pending)-1]
			}
			start := time.Now()
			frame := frames[int(combined.FrameIndex)%len(frames)]
			out := compositor.Composite(frame.image, combined, *viewWidth, *viewHeight)
			path := filepath.Join(*outDir, fmt.Sprintf("frame-%06d.png", combined.FrameIndex))
			if err := gg.SavePNG(path, out); err != nil {
				logger.Errorf("Failed to write %v: %v", path, err)
			}
			renderTime.AddSample(time.Now().Sub(start).Seconds() * 1000)
			rendered++
			if renderTime.Samples == 300 {
				logger.Infof("Rendered %v frames, %.1f ms per composite+encode", rendered, renderTime.Average())
				renderTime.Reset()
			}
		}
	}()

	// Submission loop: feed the frame sequence at the display rate,
	// looping back to the start when it runs out
	ticker := time.NewTicker(opts.DisplayInterval)
	defer ticker.Stop()
	index := int64(0)
	for {
		select {
		case <-stop:
			logger.Infof("Shutting down")
			return
		case <-ticker.C:
			frame := frames[int(index)%len(frames)]
			sched.Submit(nn.FrameData{
				Bytes: frame.bytes,
				Index: index % opts.TotalFrames,
				PTS:   time.Now(),
			})
			index++
		}
	}
}

type loadedFrame struct {
	bytes []byte
	image image.Image
}

// loadFrames reads every decodable image in dir, in filename order.
func loadFrames(dir string) ([]loadedFrame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	frames := []loadedFrame{}
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		img, err := decodeImage(raw)
		if err != nil {
			// Not an image (README, hidden file); skip it
			continue
		}
		frames = append(frames, loadedFrame{bytes: raw, image: img})
	}
	return frames, nil
}

func decodeImage(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	return img, err
}
