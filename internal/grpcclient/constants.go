package grpcclient

import "time"

const (
	// RecognizeMethod is the unary OCR call: BytesValue(PNG) -> ListValue(strings).
	RecognizeMethod = "/transcendia.ocr.v1.OCRService/Recognize"
	// ModelDirKey tells the engine where the provisioned model files live.
	ModelDirKey = "x-model-dir"
	// LanguagesKey carries recognition language hints.
	LanguagesKey = "x-ocr-languages"

	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// DefaultCallTimeout bounds one recognition attempt.
	DefaultCallTimeout = 5 * time.Second
	HealthCheckTimeout = 2 * time.Second
)
