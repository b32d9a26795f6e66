package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/avast/retry-go/v4"
	"google.golang.org/api/option"
)

const (
	// MaxImageBytes is the largest encoded image Vision accepts inline (20MB).
	MaxImageBytes = 20 * 1024 * 1024

	visionAttempts = 3
	visionDelay    = 500 * time.Millisecond
)

// languageHints maps Tesseract language codes to BCP-47 hints.
var languageHints = map[string]string{
	"por": "pt",
	"eng": "en",
	"spa": "es",
	"fra": "fr",
	"deu": "de",
	"ita": "it",
}

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// GoogleVisionEngine implements Engine using the Google Cloud Vision API.
type GoogleVisionEngine struct {
	client   *vision.ImageAnnotatorClient
	annotate annotateFunc
}

// NewGoogleVisionEngine creates a Vision engine with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewGoogleVisionEngine(ctx context.Context) (*GoogleVisionEngine, error) {
	const op = "NewGoogleVisionEngine"

	var client *vision.ImageAnnotatorClient
	var err error

	// Check for inline credentials first
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		// Try default credentials as fallback
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &GoogleVisionEngine{
		client: client,
		annotate: func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return client.BatchAnnotateImages(ctx, req)
		},
	}, nil
}

// Name implements Engine.
func (g *GoogleVisionEngine) Name() string { return "vision" }

// Text implements Engine. The whitelist is applied after recognition since
// Vision has no character restriction.
func (g *GoogleVisionEngine) Text(ctx context.Context, img image.Image, opts Options) (string, error) {
	const op = "Text"

	annotations, err := g.detect(ctx, img, opts)
	if err != nil {
		return "", WrapOCRError(op, err, "")
	}
	if len(annotations) == 0 {
		return "", nil
	}
	return FilterWhitelist(annotations[0].GetDescription(), opts.Whitelist), nil
}

// Tokens implements Engine. Vision reports one full-text annotation followed
// by one annotation per word; only the words are returned.
func (g *GoogleVisionEngine) Tokens(ctx context.Context, img image.Image, opts Options) ([]Token, error) {
	const op = "Tokens"

	annotations, err := g.detect(ctx, img, opts)
	if err != nil {
		return nil, WrapOCRError(op, err, "")
	}
	if len(annotations) < 2 {
		return nil, nil
	}

	origin := img.Bounds().Min
	tokens := make([]Token, 0, len(annotations)-1)
	for _, a := range annotations[1:] {
		text := strings.TrimSpace(FilterWhitelist(a.GetDescription(), opts.Whitelist))
		if text == "" {
			continue
		}
		tokens = append(tokens, Token{
			Text:       text,
			Box:        polyBounds(a.GetBoundingPoly()).Add(origin),
			Confidence: float64(a.GetConfidence()),
		})
	}
	return tokens, nil
}

func (g *GoogleVisionEngine) detect(ctx context.Context, img image.Image, opts Options) ([]*visionpb.EntityAnnotation, error) {
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if buf.Len() > MaxImageBytes {
		return nil, fmt.Errorf("%w: encoded image is %d bytes", ErrOCRFailed, buf.Len())
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: buf.Bytes()},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{LanguageHints: hints(opts.Languages)},
			},
		},
	}

	var resp *visionpb.BatchAnnotateImagesResponse
	err := retry.Do(
		func() error {
			var err error
			resp, err = g.annotate(ctx, req)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(visionAttempts),
		retry.Delay(visionDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: Vision API call failed: %v", ErrOCRFailed, err)
	}

	if len(resp.GetResponses()) == 0 {
		return nil, fmt.Errorf("%w: no response from Vision API", ErrOCRFailed)
	}
	imgResp := resp.GetResponses()[0]
	if imgResp.GetError() != nil {
		return nil, fmt.Errorf("%w: Vision API error: %s", ErrOCRFailed, imgResp.GetError().GetMessage())
	}
	return imgResp.GetTextAnnotations(), nil
}

// Close closes the underlying Vision client.
func (g *GoogleVisionEngine) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func hints(langs []string) []string {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		if h, ok := languageHints[l]; ok {
			out = append(out, h)
		} else {
			out = append(out, l)
		}
	}
	return out
}

func polyBounds(p *visionpb.BoundingPoly) image.Rectangle {
	vs := p.GetVertices()
	if len(vs) == 0 {
		return image.Rectangle{}
	}
	minX, minY := int(vs[0].GetX()), int(vs[0].GetY())
	maxX, maxY := minX, minY
	for _, v := range vs[1:] {
		minX, maxX = min(minX, int(v.GetX())), max(maxX, int(v.GetX()))
		minY, maxY = min(minY, int(v.GetY())), max(maxY, int(v.GetY()))
	}
	return image.Rect(minX, minY, maxX, maxY)
}
