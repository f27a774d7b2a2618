// Package pdf pulls embedded page images out of scanned PDF documents so they
// can be fed to the recognition pipeline.
package pdf

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	_ "golang.org/x/image/tiff"
)

// PageImage is one embedded image, in document order.
type PageImage struct {
	Page  int
	Index int
	Image image.Image
}

// ExtractImages extracts all images from a PDF file using pdfcpu's extract functionality.
func ExtractImages(filename string, pageRange string) (map[int][]image.Image, error) {
	pageNumbers, err := parsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "docscan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var pageStrings []string
	if len(pageNumbers) > 0 {
		pageStrings = make([]string, len(pageNumbers))
		for i, pageNum := range pageNumbers {
			pageStrings[i] = strconv.Itoa(pageNum)
		}
	}

	if err := api.ExtractImagesFile(filename, tempDir, pageStrings, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	result, err := collectExtractedImages(tempDir, extractPrefix(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	return result, nil
}

// OrderedImages flattens the page map into page order, keeping the image
// order within each page.
func OrderedImages(pages map[int][]image.Image) []PageImage {
	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	var out []PageImage
	for _, n := range nums {
		for i, img := range pages[n] {
			out = append(out, PageImage{Page: n, Index: i, Image: img})
		}
	}
	return out
}

// PageCount returns the number of pages in the document.
func PageCount(filename string) (int, error) {
	n, err := api.PageCountFile(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to count PDF pages: %w", err)
	}
	return n, nil
}

// extractPrefix is the file name stem pdfcpu puts in front of every
// extracted image.
func extractPrefix(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: files come from our own temp dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	return img, err
}

// collectExtractedImages walks dir and groups images by page number. File
// names have the form <prefix>_<page>_<name>.<ext> or <prefix>_<page>.<ext>.
// Entries within a page are ordered by file name.
func collectExtractedImages(dir, prefix string) (map[int][]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	result := make(map[int][]image.Image)
	for _, name := range names {
		pageNum, err := parsePageFromFilename(prefix, name)
		if err != nil {
			continue
		}
		img, err := loadImageFile(filepath.Join(dir, name))
		if err != nil || img == nil {
			// formats we cannot decode (JPX, CCITT) are skipped
			continue
		}
		result[pageNum] = append(result[pageNum], img)
	}
	return result, nil
}

// parsePageFromFilename extracts the page number from an extracted image name.
func parsePageFromFilename(prefix, filename string) (int, error) {
	rest, ok := strings.CutPrefix(filename, prefix+"_")
	if !ok {
		return 0, errors.New("not a page image")
	}
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end <= 0 {
		return 0, errors.New("invalid page number")
	}
	pageNum, err := strconv.Atoi(rest[:end])
	if err != nil || pageNum < 1 {
		return 0, errors.New("invalid page number")
	}
	return pageNum, nil
}

// parsePageRange parses a page range string like "1-5" or "1,3,5".
// Duplicates are dropped and the result is sorted.
func parsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}

	seen := make(map[int]struct{})
	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		for _, p := range tokenPages {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			pages = append(pages, p)
		}
	}
	sort.Ints(pages)
	return pages, nil
}

// parseRangeToken parses either a single page token (e.g., "3") or a range token (e.g., "1-5").
func parseRangeToken(part string) ([]int, error) {
	if strings.Contains(part, "-") {
		rangeParts := strings.Split(part, "-")
		if len(rangeParts) != 2 {
			return nil, fmt.Errorf("invalid range format: %s", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", rangeParts[0])
		}
		end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", rangeParts[1])
		}
		if start < 1 {
			return nil, fmt.Errorf("page numbers start at 1, got %d", start)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	if page < 1 {
		return nil, fmt.Errorf("page numbers start at 1, got %d", page)
	}
	return []int{page}, nil
}
