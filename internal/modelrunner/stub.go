package modelrunner

// NullDetector and NullClassifier satisfy the Detector/Classifier
// boundary without linking a real ONNX runtime, per spec.md's explicit
// out-of-scope treatment of that library. They let the dispatcher,
// router, and HTTP layer be fully exercised end-to-end; swapping in a
// real onnxruntime-backed implementation only requires supplying a
// different Detector/Classifier pair to NewPipeline.
type NullDetector struct{ ModelPath string }

func (NullDetector) Detect(image []byte) ([]Box, error) {
	return nil, nil
}

type NullClassifier struct{ ModelPath string }

func (NullClassifier) Classify(image []byte, box Box) (int, error) {
	return 0, nil
}
