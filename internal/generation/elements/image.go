package elements

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
	"github.com/yungbote/clusterforge-backend/internal/platform/objectstore"
)

type annotationOut struct {
	Annotation string `json:"image_annotation"`
	Prompt     string `json:"prompt"`
	AltTag     string `json:"image_alt_tag"`
}

func (o *annotationOut) Validate() error {
	if strings.TrimSpace(o.Prompt) == "" {
		return errors.New("empty image prompt")
	}
	return nil
}

// FillImage generates, resizes and uploads the picture for an image element
// and attaches its caption.
func (s *Service) FillImage(ctx context.Context, e *structure.Element, pc *PageContext) bool {
	return s.retry(ctx, e, pc, (*Service).fillImage)
}

func (s *Service) fillImage(ctx context.Context, e *structure.Element, pc *PageContext) error {
	if s.images == nil {
		return errors.New("no image store configured")
	}
	var ann annotationOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   "image_annotation",
		System: "You art-direct illustrations for web pages.",
		User: pc.describe() + "\nDescribe one illustration for the page: a caption for readers, " +
			"a detailed prompt for an image model (no text in the image) and a short alt tag.",
		Schema: llm.Object(map[string]any{
			"image_annotation": llm.String(),
			"prompt":           llm.String(),
			"image_alt_tag":    llm.String(),
		}),
	}, &ann)
	if err != nil {
		return err
	}

	img, err := s.inv.Image(ctx, ann.Prompt)
	if err != nil {
		return err
	}
	data, err := ShrinkPNG(img.Bytes, s.cfg.ImageMaxWidth)
	if err != nil {
		return err
	}
	key := objectstore.PagePrefix(pc.OwnerID, pc.ClusterID, pc.PageID) + "images/" + e.ID.String() + ".png"
	uri, err := s.images.Save(ctx, key, data)
	if err != nil {
		return err
	}
	if uri == "" {
		return fmt.Errorf("image upload returned no uri for %s", key)
	}

	e.Href = uri
	e.SetSetting("image_alt_tag", strings.TrimSpace(ann.AltTag))
	caption := strings.TrimSpace(ann.Annotation)
	if e.Tag != structure.TagCTAImg {
		if fc := e.Child(structure.TagFigcaption); fc != nil {
			fc.Content, fc.Processed = caption, caption != ""
		} else if caption != "" {
			e.Children = append(e.Children, newChild(structure.TagFigcaption, e.Position, caption))
		}
	}
	e.Processed = true
	return nil
}

// ShrinkPNG decodes an image, scales it down to maxWidth keeping the aspect
// ratio and re-encodes it as PNG. Narrower images are only re-encoded.
func ShrinkPNG(raw []byte, maxWidth int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	var out image.Image = src
	if maxWidth > 0 && b.Dx() > maxWidth {
		h := b.Dy() * maxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		out = dst
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// FillCTAImage fills the picture of a CTA block and its caption sibling.
func (s *Service) FillCTAImage(ctx context.Context, cta *structure.Element, pc *PageContext) {
	img := cta.Child(structure.TagCTAImg)
	if img == nil || img.Processed {
		return
	}
	if !s.FillImage(ctx, img, pc) {
		return
	}
	if fc := cta.Child(structure.TagCTAFigcaption); fc != nil {
		alt := img.Setting("image_alt_tag")
		fc.Content, fc.Processed = alt, alt != ""
	}
}
