package transform

import (
	"bytes"
	"fmt"
	"time"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

// exifTimeLayout is the EXIF ASCII date-time format.
const exifTimeLayout = "2006:01:02 15:04:05"

// stampCaptureTime writes DateTimeOriginal into the EXIF block of jpegData.
// Tags already present in source are carried over. When the image was
// resized, the pixel dimensions are rewritten to width x height and the
// source thumbnail IFD is dropped.
func stampCaptureTime(jpegData, source []byte, createdAt time.Time, resized bool, width, height int) (out []byte, err error) {
	// go-exif reports some failures by panicking.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("transform: writing exif: %v", r)
		}
	}()

	rootIb, err := exifBuilderFrom(source)
	if err != nil {
		return nil, err
	}

	exifIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
	if err != nil {
		return nil, fmt.Errorf("transform: locating exif ifd: %w", err)
	}

	if err := exifIb.SetStandardWithName("DateTimeOriginal", createdAt.UTC().Format(exifTimeLayout)); err != nil {
		return nil, fmt.Errorf("transform: setting DateTimeOriginal: %w", err)
	}

	if resized {
		if err := resizeExif(rootIb, exifIb, width, height); err != nil {
			return nil, err
		}
	}

	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(jpegData)
	if err != nil {
		return nil, fmt.Errorf("transform: parsing jpeg segments: %w", err)
	}

	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("transform: unexpected media context %T", mc)
	}

	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("transform: embedding exif: %w", err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("transform: writing jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

// resizeExif brings copied tags in line with a downscaled image.
func resizeExif(rootIb, exifIb *exif.IfdBuilder, width, height int) error {
	if err := exifIb.SetStandardWithName("PixelXDimension", []uint32{uint32(width)}); err != nil {
		return fmt.Errorf("transform: setting PixelXDimension: %w", err)
	}

	if err := exifIb.SetStandardWithName("PixelYDimension", []uint32{uint32(height)}); err != nil {
		return fmt.Errorf("transform: setting PixelYDimension: %w", err)
	}

	// IFD1 holds the source thumbnail.
	if err := rootIb.SetNextIb(nil); err != nil {
		return fmt.Errorf("transform: dropping thumbnail ifd: %w", err)
	}

	return nil
}

// exifBuilderFrom returns a root IFD builder seeded with the EXIF found in
// source, or an empty one when source has none or it cannot be parsed.
func exifBuilderFrom(source []byte) (*exif.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("transform: building ifd mapping: %w", err)
	}

	ti := exif.NewTagIndex()

	if ib := existingExif(im, ti, source); ib != nil {
		return ib, nil
	}

	return exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
}

// existingExif copies the EXIF chain of source into a builder. It returns nil
// when source has no EXIF or the block is malformed, including entries that
// point outside the block.
func existingExif(im *exifcommon.IfdMapping, ti *exif.TagIndex, source []byte) (ib *exif.IfdBuilder) {
	defer func() {
		if recover() != nil {
			ib = nil
		}
	}()

	rawExif, err := exif.SearchAndExtractExif(source)
	if err != nil {
		return nil
	}

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return nil
	}

	return exif.NewIfdBuilderFromExistingChain(index.RootIfd)
}
