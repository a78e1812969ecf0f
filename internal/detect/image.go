// File: internal/detect/image.go
package detect

import (
	"fmt"

	"github.com/uveworks/vigil/api/schemas"
)

// ImageDetector flags broken images (loaded but zero-dimension, or load
// never completed) and images missing alt text.
type ImageDetector struct{}

// NewImageDetector creates the image audit detector.
func NewImageDetector() *ImageDetector { return &ImageDetector{} }

func (d *ImageDetector) Name() string { return "image" }

func (d *ImageDetector) Detect(ev *schemas.Evidence) []schemas.Issue {
	var issues []schemas.Issue
	for _, img := range ev.Images {
		if img.Src == "" {
			continue
		}

		broken := img.Complete && (img.NaturalWidth == 0 || img.NaturalHeight == 0)
		if broken {
			issues = append(issues, schemas.Issue{
				Category:    schemas.CategoryBrokenImage,
				Severity:    schemas.SeverityMedium,
				Description: fmt.Sprintf("Image failed to load: %s", truncate(img.Src, 200)),
				PageURL:     ev.PageURL,
				ElementRef:  img.Selector,
			})
		}

		// Alt text matters for images that rendered.
		if !broken && img.Alt == "" {
			issues = append(issues, schemas.Issue{
				Category:    schemas.CategoryMissingAltText,
				Severity:    schemas.SeverityLow,
				Description: fmt.Sprintf("Image has no alt text: %s", truncate(img.Src, 200)),
				PageURL:     ev.PageURL,
				ElementRef:  img.Selector,
			})
		}
	}
	return issues
}
