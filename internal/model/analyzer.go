package model

import (
	"context"
	"fmt"
	"image"
	"log"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/face-embed/internal/config"
)

// Options controls how the ONNX Runtime environment and sessions are created.
type Options struct {
	SharedLibrary  string
	Engines        int
	IntraOpThreads int
}

// Analyzer detects faces and computes their embeddings. It is created once at
// start-up and is safe for concurrent use; calls are spread over a fixed pool
// of engines and wait when all of them are busy.
type Analyzer struct {
	Manifest *config.Manifest
	pool     *pool
	ownsEnv  bool
}

// onnxEngine pairs a detector and a recognizer that share nothing with other engines.
type onnxEngine struct {
	det *detector
	rec *recognizer
}

func (e *onnxEngine) analyze(img *image.RGBA, maxFaces int) ([]Face, error) {
	faces, err := e.det.detect(img)
	if err != nil {
		return nil, err
	}
	faces = limitFaces(faces, maxFaces)
	for i := range faces {
		emb, err := e.rec.embed(img, faces[i].Landmarks)
		if err != nil {
			return nil, err
		}
		faces[i].Embedding = emb
	}
	return faces, nil
}

func (e *onnxEngine) destroy() {
	e.det.destroy()
	e.rec.destroy()
}

// limitFaces keeps the first maxFaces faces; maxFaces <= 0 keeps all of them.
func limitFaces(faces []Face, maxFaces int) []Face {
	if maxFaces > 0 && len(faces) > maxFaces {
		return faces[:maxFaces]
	}
	return faces
}

// releaser collects teardown steps and runs them in reverse order, so objects
// created from the ONNX environment are released before the environment itself.
type releaser []func()

func (r *releaser) add(f func()) {
	*r = append(*r, f)
}

func (r releaser) release() {
	for i := len(r) - 1; i >= 0; i-- {
		r[i]()
	}
}

// NewAnalyzer initializes ONNX Runtime on the CPU provider and loads
// opts.Engines copies of the detector and recognizer.
func NewAnalyzer(manifest *config.Manifest, opts Options) (*Analyzer, error) {
	if opts.Engines < 1 {
		opts.Engines = 1
	}

	if opts.SharedLibrary != "" {
		ort.SetSharedLibraryPath(opts.SharedLibrary)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	var undo releaser
	undo.add(func() { ort.DestroyEnvironment() })

	options, err := ort.NewSessionOptions()
	if err != nil {
		undo.release()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	undo.add(func() { options.Destroy() })

	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			undo.release()
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	engines := make([]engine, 0, opts.Engines)
	for i := range opts.Engines {
		det, err := newDetector(manifest.Detector, options)
		if err != nil {
			undo.release()
			return nil, fmt.Errorf("engine %d: %w", i, err)
		}
		undo.add(det.destroy)

		rec, err := newRecognizer(manifest.Recognizer, options)
		if err != nil {
			undo.release()
			return nil, fmt.Errorf("engine %d: %w", i, err)
		}
		undo.add(rec.destroy)
		engines = append(engines, &onnxEngine{det: det, rec: rec})
	}

	// sessions keep their own copy of the options
	options.Destroy()

	log.Printf("Loaded %d face engine(s): detector=%s recognizer=%s",
		len(engines), manifest.Detector.Path, manifest.Recognizer.Path)

	return &Analyzer{
		Manifest: manifest,
		pool:     newPool(engines),
		ownsEnv:  true,
	}, nil
}

// Analyze detects the faces in img, highest detection score first, and returns
// the best maxFaces of them with their embeddings (all of them when maxFaces <= 0).
// It blocks while all engines are busy.
func (a *Analyzer) Analyze(ctx context.Context, img *image.RGBA, maxFaces int) ([]Face, error) {
	e, err := a.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer a.pool.release(e)

	return e.analyze(img, maxFaces)
}

// EmbeddingDim returns the length of every embedding the analyser produces.
func (a *Analyzer) EmbeddingDim() int {
	return a.Manifest.Recognizer.EmbeddingDim
}

// Engines returns how many inferences can run at the same time.
func (a *Analyzer) Engines() int {
	return a.pool.size
}

// Name returns the model pack name from the manifest.
func (a *Analyzer) Name() string {
	return a.Manifest.Name
}

// Close waits for in-flight inferences and releases all sessions.
func (a *Analyzer) Close() {
	a.pool.close()
	if a.ownsEnv {
		ort.DestroyEnvironment()
	}
}
