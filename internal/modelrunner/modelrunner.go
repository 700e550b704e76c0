// Package modelrunner adapts the inference dispatcher's Predictor
// interface to the detect/classify model pipeline. Per spec.md section
// 1's explicit out-of-scope note, "the ONNX model runtime and
// image-decoding library" are external collaborators specified only by
// their two pure-function interfaces (detect, classify); this package
// stops at that boundary, validating image bytes look decodable and
// shaping a result JSON matching spec.md section 6's response schema,
// without linking an actual ONNX runtime.
package modelrunner

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/vldzyzy/boneserver/internal/inference"
	"github.com/vldzyzy/boneserver/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Detector performs bone-region detection over a decoded image, mapping
// to the source project's detect(batch) -> per-image boxes function.
type Detector interface {
	Detect(image []byte) ([]Box, error)
}

// Classifier performs per-crop maturity-stage classification, mapping to
// the source project's classify(batch of crops + class ids) function.
type Classifier interface {
	Classify(image []byte, box Box) (stage int, err error)
}

// Box is one detected joint region, matching spec.md section 6's
// bones_detail element shape.
type Box struct {
	Joint string
	X, Y  int
	W, H  int
}

// Pipeline adapts Detector+Classifier to inference.Predictor, running
// both stages over every image in a batch and serializing per-image
// results.
type Pipeline struct {
	Detector   Detector
	Classifier Classifier
	log        *logging.Logger
}

// NewPipeline wires a Pipeline against the given detector/classifier
// implementations, loaded from yolo_model_path/cls_model_path.
func NewPipeline(d Detector, c Classifier) *Pipeline {
	return &Pipeline{Detector: d, Classifier: c, log: logging.Get()}
}

// PredictBatch implements inference.Predictor (spec.md section 4.12
// step 5-6): decode failures (here, an empty or too-short byte slice)
// yield an empty-result outcome without failing the rest of the batch;
// a model-runtime error is logged and also yields an empty result,
// matching the dispatcher's "log and continue" failure semantics.
func (p *Pipeline) PredictBatch(images [][]byte) []inference.PredictOutcome {
	out := make([]inference.PredictOutcome, len(images))

	for i, img := range images {
		if !looksDecodable(img) {
			out[i] = inference.PredictOutcome{Err: errDecode}
			continue
		}

		boxes, err := p.Detector.Detect(img)
		if err != nil {
			p.log.Errorf("modelrunner: detect failed: %v", err)
			out[i] = inference.PredictOutcome{Err: err}
			continue
		}

		result, err := p.classifyAll(img, boxes)
		if err != nil {
			p.log.Errorf("modelrunner: classify failed: %v", err)
			out[i] = inference.PredictOutcome{Err: err}
			continue
		}

		out[i] = inference.PredictOutcome{ResultStr: result}
	}

	return out
}

func (p *Pipeline) classifyAll(img []byte, boxes []Box) (string, error) {
	type boneDetail struct {
		Joint         string `json:"joint"`
		Box           box    `json:"box"`
		CategoryID    int    `json:"category_id"`
		MaturityStage int    `json:"maturity_stage"`
	}
	type response struct {
		IsValid     bool         `json:"is_valid"`
		BonesDetail []boneDetail `json:"bones_detail"`
	}

	details := make([]boneDetail, 0, len(boxes))
	for idx, b := range boxes {
		stage, err := p.Classifier.Classify(img, b)
		if err != nil {
			return "", err
		}
		details = append(details, boneDetail{
			Joint:         b.Joint,
			Box:           box{X: b.X, Y: b.Y, Width: b.W, Height: b.H},
			CategoryID:    idx,
			MaturityStage: stage,
		})
	}

	resp := response{IsValid: len(details) > 0, BonesDetail: details}
	b, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// looksDecodable rejects obviously-truncated or empty payloads before
// handing them to the detector; this is a boundary guard, not a real
// image-format validator (that library is out of scope per spec.md).
func looksDecodable(img []byte) bool {
	return len(img) >= 8
}

var errDecode = fmt.Errorf("modelrunner: image failed to decode")
