package model

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/face-embed/internal/config"
)

// recognizer wraps an ArcFace session with pre-bound input and output tensors.
type recognizer struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	spec         config.RecognizerSpec
}

func newRecognizer(spec config.RecognizerSpec, options *ort.SessionOptions) (*recognizer, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect recognizer model: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("recognizer: expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}

	size := int64(spec.InputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(spec.EmbeddingDim)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create recognizer output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(spec.Path,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create recognizer session: %w", err)
	}

	return &recognizer{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		spec:         spec,
	}, nil
}

// embed returns the raw (not normalised) embedding of the face at landmarks.
func (r *recognizer) embed(img *image.RGBA, landmarks [5][2]float32) ([]float32, error) {
	aligned := alignFace(img, landmarks, r.spec.InputSize)
	fillBlob(r.inputTensor.GetData(), aligned, 127.5, 127.5)

	if err := r.session.Run(); err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	out := r.outputTensor.GetData()
	embedding := make([]float32, len(out))
	copy(embedding, out)
	return embedding, nil
}

func (r *recognizer) destroy() {
	if r.inputTensor != nil {
		r.inputTensor.Destroy()
	}
	if r.outputTensor != nil {
		r.outputTensor.Destroy()
	}
	if r.session != nil {
		r.session.Destroy()
	}
}
