package model

import (
	"fmt"
	"image"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/face-embed/internal/config"
)

// detector wraps an SCRFD session. The input tensor is bound once and reused,
// so a detector must not be shared between goroutines.
type detector struct {
	session     *ort.DynamicAdvancedSession
	inputTensor *ort.Tensor[float32]
	spec        config.DetectorSpec
}

func newDetector(spec config.DetectorSpec, options *ort.SessionOptions) (*detector, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect detector model: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("detector: expected 1 input, got %d", len(inputs))
	}
	// scores, boxes and keypoints for every stride
	if want := 3 * len(spec.Strides); len(outputs) != want {
		return nil, fmt.Errorf("detector: expected %d outputs (with keypoints), got %d", want, len(outputs))
	}

	outputNames := make([]string, len(outputs))
	for i, o := range outputs {
		outputNames[i] = o.Name
	}

	size := int64(spec.InputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("failed to create detector input tensor: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(spec.Path,
		[]string{inputs[0].Name}, outputNames, options)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create detector session: %w", err)
	}

	return &detector{
		session:     session,
		inputTensor: inputTensor,
		spec:        spec,
	}, nil
}

func (d *detector) detect(img *image.RGBA) ([]Face, error) {
	canvas, scale := letterbox(img, d.spec.InputSize)
	fillBlob(d.inputTensor.GetData(), canvas, 127.5, 128)

	outputs := make([]ort.Value, 3*len(d.spec.Strides))
	if err := d.session.Run([]ort.Value{d.inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	data := make([][]float32, len(outputs))
	for i, o := range outputs {
		t, ok := o.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("detector output %d is not a float32 tensor", i)
		}
		data[i] = t.GetData()
	}

	faces, err := decodeDetections(data, d.spec, scale)
	if err != nil {
		return nil, err
	}
	return nms(faces, d.spec.NMSThresh), nil
}

func (d *detector) destroy() {
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	if d.session != nil {
		d.session.Destroy()
	}
}

// decodeDetections turns raw SCRFD outputs into candidate faces in source image
// coordinates. outputs holds the score tensors for every stride, followed by the
// box distance tensors, followed by the keypoint distance tensors. Candidates are
// returned sorted by score, highest first.
func decodeDetections(outputs [][]float32, spec config.DetectorSpec, scale float32) ([]Face, error) {
	n := len(spec.Strides)
	if len(outputs) != 3*n {
		return nil, fmt.Errorf("expected %d detector outputs, got %d", 3*n, len(outputs))
	}

	var faces []Face
	for idx, stride := range spec.Strides {
		cells := spec.InputSize / stride
		count := cells * cells * spec.AnchorsPerPt

		scores := outputs[idx]
		boxes := outputs[idx+n]
		kps := outputs[idx+2*n]
		if len(scores) < count || len(boxes) < count*4 || len(kps) < count*10 {
			return nil, fmt.Errorf("stride %d: output too small for %d anchors", stride, count)
		}

		s := float32(stride)
		for i := 0; i < count; i++ {
			if scores[i] < spec.ScoreThresh {
				continue
			}
			cell := i / spec.AnchorsPerPt
			cx := float32(cell%cells) * s
			cy := float32(cell/cells) * s

			d := boxes[i*4 : i*4+4]
			f := Face{
				Score: scores[i],
				BBox: [4]float32{
					(cx - d[0]*s) / scale,
					(cy - d[1]*s) / scale,
					(cx + d[2]*s) / scale,
					(cy + d[3]*s) / scale,
				},
			}
			k := kps[i*10 : i*10+10]
			for p := range 5 {
				f.Landmarks[p] = [2]float32{
					(cx + k[2*p]*s) / scale,
					(cy + k[2*p+1]*s) / scale,
				}
			}
			faces = append(faces, f)
		}
	}

	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Score > faces[j].Score
	})
	return faces, nil
}

// nms performs greedy non-maximum suppression on faces sorted by score. Boxes
// overlapping a kept box by more than thresh IoU are dropped. Areas follow the
// inclusive pixel convention (+1).
func nms(faces []Face, thresh float32) []Face {
	kept := make([]Face, 0, len(faces))
	suppressed := make([]bool, len(faces))

	for i := range faces {
		if suppressed[i] {
			continue
		}
		kept = append(kept, faces[i])
		a := faces[i].BBox
		areaA := (a[2] - a[0] + 1) * (a[3] - a[1] + 1)

		for j := i + 1; j < len(faces); j++ {
			if suppressed[j] {
				continue
			}
			b := faces[j].BBox
			areaB := (b[2] - b[0] + 1) * (b[3] - b[1] + 1)

			w := max(0, min(a[2], b[2])-max(a[0], b[0])+1)
			h := max(0, min(a[3], b[3])-max(a[1], b[1])+1)
			inter := w * h
			if inter/(areaA+areaB-inter) > thresh {
				suppressed[j] = true
			}
		}
	}
	return kept
}
