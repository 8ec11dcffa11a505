/*
Example code showing how to estimate marker poses from a video stream using
ArUco detection in OpenCV
*/
package main

import (
	"flag"
	"log"
	"os"
	"sort"

	"github.com/swdee/go-markerpose"
	"github.com/swdee/go-markerpose/geometry"
	"github.com/swdee/go-markerpose/markers"
	"github.com/swdee/go-markerpose/pnp"
	"github.com/swdee/go-markerpose/render"
	"github.com/swdee/go-markerpose/tracker"
	"gocv.io/x/gocv"
)

// Demo holds the capture source, marker detector and pose pipeline
type Demo struct {
	video    *gocv.VideoCapture
	detector gocv.ArucoDetector
	pipeline *markerpose.Pipeline
	style    render.Style
	// writer saves annotated frames when an output file is given
	writer *gocv.VideoWriter
}

// NewDemo opens the capture source and builds the pipeline
func NewDemo(device int, vidFile, configFile, calibFile string, defaultSize float64,
	persistence, span, order int) (*Demo, error) {

	config := markers.LoadFileOrEmpty(configFile)
	log.Printf("Loaded %d objects from %s", config.Len(), configFile)

	calib, err := loadCalibration(calibFile)

	if err != nil {
		return nil, err
	}

	estimator := markerpose.NewEstimator(config, calib, defaultSize)
	estimator.SetLogger(log.Default())

	var tags markerpose.TagFilter

	if span > 1 {
		tagAges, err := tracker.NewFindOutdated[markers.TagID](persistence)

		if err != nil {
			return nil, err
		}

		tags, err = tracker.NewMovingAverage[markers.TagID, geometry.Quad](tagAges, span)

		if err != nil {
			return nil, err
		}
	}

	var poses markerpose.PoseFilter

	if order >= 0 {
		poseAges, err := tracker.NewFindOutdated[string](persistence)

		if err != nil {
			return nil, err
		}

		poses, err = tracker.NewKalmanTracker[string, geometry.Transform](poseAges, order,
			tracker.DefaultKalmanParams())

		if err != nil {
			return nil, err
		}
	}

	var video *gocv.VideoCapture

	if vidFile != "" {
		video, err = gocv.VideoCaptureFile(vidFile)
	} else {
		video, err = gocv.VideoCaptureDevice(device)
	}

	if err != nil {
		return nil, err
	}

	detector := gocv.NewArucoDetectorWithParams(
		gocv.GetPredefinedDictionary(gocv.ArucoDict4x4_50),
		gocv.NewArucoDetectorParameters(),
	)

	return &Demo{
		video:    video,
		detector: detector,
		pipeline: markerpose.NewPipeline(estimator, tags, poses),
		style:    render.DefaultStyle(max(defaultSize, 30)),
	}, nil
}

// SaveTo writes annotated frames to a video file
func (d *Demo) SaveTo(outFile string) error {

	width := int(d.video.Get(gocv.VideoCaptureFrameWidth))
	height := int(d.video.Get(gocv.VideoCaptureFrameHeight))
	fps := d.video.Get(gocv.VideoCaptureFPS)

	if fps <= 0 {
		fps = 30
	}

	writer, err := gocv.VideoWriterFile(outFile, "MJPG", fps, width, height, true)

	if err != nil {
		return err
	}

	d.writer = writer
	log.Printf("Saving annotated video to %s (%dx%d @ %.1f fps)", outFile, width, height, fps)

	return nil
}

// loadCalibration reads the camera calibration, falling back to a pinhole
// camera for a 640x480 image
func loadCalibration(calibFile string) (pnp.Calibration, error) {

	if calibFile == "" {
		log.Printf("No calibration given, assuming 640x480 pinhole camera")
		return pnp.NewPinhole(700, 320, 240)
	}

	f, err := os.Open(calibFile)

	if err != nil {
		return pnp.Calibration{}, err
	}

	defer f.Close()

	return pnp.LoadCalibration(f)
}

// Close releases the capture source, detector and writer
func (d *Demo) Close() {
	if d.writer != nil {
		d.writer.Close()
	}
	d.detector.Close()
	d.video.Close()
}

// Run reads frames until the source is exhausted, printing the poses found
func (d *Demo) Run() {

	img := gocv.NewMat()
	defer img.Close()

	frameNum := 0

	for d.video.Read(&img) {

		if img.Empty() {
			continue
		}

		frameNum++

		corners, ids, _ := d.detector.DetectMarkers(img)
		detections := make(markerpose.Detections, len(ids))

		for i, id := range ids {
			c := corners[i]
			detections[markers.TagID(id)] = geometry.NewQuad(
				geometry.Point2D{X: float64(c[0].X), Y: float64(c[0].Y)},
				geometry.Point2D{X: float64(c[1].X), Y: float64(c[1].Y)},
				geometry.Point2D{X: float64(c[2].X), Y: float64(c[2].Y)},
				geometry.Point2D{X: float64(c[3].X), Y: float64(c[3].Y)},
			)
		}

		poses := d.pipeline.Process(detections)

		names := make([]string, 0, len(poses))

		for name := range poses {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			t := poses[name].Translation()
			log.Printf("Frame %d: %s at (%.1f, %.1f, %.1f)", frameNum, name, t.X, t.Y, t.Z)
		}

		if d.writer != nil {
			render.Markers(&img, detections, d.style)
			render.Axes(&img, poses, d.pipeline.Estimator().Calibration(), d.style)

			if err := d.writer.Write(img); err != nil {
				log.Printf("Error writing frame %d: %v", frameNum, err)
			}
		}
	}

	log.Printf("End of stream after %d frames", frameNum)
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	device := flag.Int("d", 0, "Video capture device ID")
	vidFile := flag.String("v", "", "Video file to use instead of the capture device")
	configFile := flag.String("c", "objects.yaml", "YAML marker configuration file")
	calibFile := flag.String("k", "", "YAML camera calibration file")
	defaultSize := flag.Float64("s", 50, "Size of tags not in the marker configuration, 0 ignores them")
	persistence := flag.Int("p", 5, "Number of frames a missing tag or object is remembered")
	span := flag.Int("w", 3, "Moving average window over tag corners, 1 disables it")
	order := flag.Int("o", 1, "Kalman filter derivative order for poses, -1 disables it")
	outFile := flag.String("out", "", "Save annotated video to this file")

	flag.Parse()

	demo, err := NewDemo(*device, *vidFile, *configFile, *calibFile, *defaultSize,
		*persistence, *span, *order)

	if err != nil {
		log.Fatalf("Error creating demo: %v", err)
	}

	defer demo.Close()

	if *outFile != "" {
		if err := demo.SaveTo(*outFile); err != nil {
			log.Fatalf("Error creating video writer: %v", err)
		}
	}

	demo.Run()
}
