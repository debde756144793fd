// Package models provisions the OCR model files the recognition engine loads.
package models

import (
	"os"
	"path/filepath"
)

// DirName is the model directory under the user's data directory.
const DirName = "ocr_models"

// Descriptor names one required model file and where to fetch it.
type Descriptor struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

const modelRepo = "https://github.com/zibo-chen/rust-paddle-ocr/raw/refs/heads/main/models/"

// DefaultModels are the PP-OCRv5 mobile detector, recognizer and key table.
var DefaultModels = []Descriptor{
	{Name: "text-detection.mnn", URL: modelRepo + "PP-OCRv5_mobile_det_fp16.mnn"},
	{Name: "text-recognition.mnn", URL: modelRepo + "PP-OCRv5_mobile_rec_fp16.mnn"},
	{Name: "ocr_keys.txt", URL: modelRepo + "ppocr_keys_v5.txt"},
}

// DefaultDir returns <user config dir>/transcendia/ocr_models, falling back
// to the working directory when the platform reports none.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(base, "transcendia", DirName)
}
