package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ekisa-team/speakpaint/internal/xfs"
)

const defaultAudioExt = ".wav"

var safeExt = regexp.MustCompile(`^\.[A-Za-z0-9]{1,10}$`)

// AudioUpload is an uploaded recording.
type AudioUpload struct {
	Body     io.Reader
	Filename string
	Language string
}

// TranscriptionResult is the transcribed text and the English prompt derived from it.
type TranscriptionResult struct {
	Text   string `json:"transcribed_text"`
	Prompt string `json:"prompt"`
}

// Transcription turns recordings into English image prompts.
type Transcription struct {
	stt        *STT
	translator *Translation
	tempDir    string
}

// NewTranscription creates a new Transcription service. Uploads are stored in
// tempDir while they are transcribed.
func NewTranscription(stt *STT, translator *Translation, tempDir string) *Transcription {
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return &Transcription{
		stt:        stt,
		translator: translator,
		tempDir:    tempDir,
	}
}

// Transcribe stores the upload in a temporary file, transcribes it and, when
// the language is "other", translates the text into English. The temporary
// file is removed before Transcribe returns.
func (s *Transcription) Transcribe(ctx context.Context, upload AudioUpload) (*TranscriptionResult, error) {
	if upload.Body == nil {
		return nil, ErrNoAudio
	}

	name, err := uniqueName("audio", audioExt(upload.Filename))
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.tempDir, name)

	size, err := writeTemp(path, upload.Body)
	defer removeTemp(path)
	if err != nil {
		return nil, fmt.Errorf("save uploaded audio: %w", err)
	}

	slog.Info("Running Whisper transcription", "file", name, "size", humanize.Bytes(uint64(size)))

	audio, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("uploaded file missing after save: %w", err)
	}
	defer audio.Close()

	text, err := s.stt.Transcribe(ctx, audio, name)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, ErrNoSpeech
	}

	prompt := text
	if strings.TrimSpace(upload.Language) == LanguageOther {
		slog.Info("Translating text to English")

		prompt, err = s.translator.ToEnglish(ctx, text)
		if err != nil {
			return nil, err
		}
	}

	return &TranscriptionResult{Text: text, Prompt: prompt}, nil
}

func audioExt(filename string) string {
	ext := xfs.Ext(filename, defaultAudioExt)
	if !safeExt.MatchString(ext) {
		return defaultAudioExt
	}
	return strings.ToLower(ext)
}

func writeTemp(path string, body io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	return n, err
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to delete temp audio", "path", path, "error", err)
		}
		return
	}

	slog.Debug("Temp audio deleted", "path", path)
}
