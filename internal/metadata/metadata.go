package metadata

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
	"github.com/lopugit/ytmcloner/internal/monitoring"
	"go.uber.org/zap"
)

// Tagger writes tags into encoded audio files
type Tagger struct {
	config  *Config
	artwork *ArtworkCache
	logger  *zap.Logger
}

// Config contains tagging configuration
type Config struct {
	EmbedArtwork bool
	ArtworkSize  int
}

// TrackMetadata contains the tags written for a song
type TrackMetadata struct {
	Title       string
	Artist      string
	Album       string
	Comment     string
	ArtworkData []byte
	ArtworkMIME string
}

// NewTagger creates a tagger. artwork may be nil, which disables artwork.
func NewTagger(config *Config, artwork *ArtworkCache, logger *zap.Logger) *Tagger {
	if config == nil {
		config = &Config{
			EmbedArtwork: true,
			ArtworkSize:  600,
		}
	}
	return &Tagger{
		config:  config,
		artwork: artwork,
		logger:  monitoring.OrNop(logger),
	}
}

// Supported reports whether files with this path's extension can be tagged
func Supported(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp3", ".flac":
		return true
	}
	return false
}

// Tag fetches artwork from artworkURL when enabled and writes metadata into
// filePath. Artwork failures are logged and the text tags still written.
func (t *Tagger) Tag(ctx context.Context, filePath string, metadata *TrackMetadata, artworkURL string) error {
	if metadata == nil {
		return fmt.Errorf("metadata cannot be nil")
	}

	if t.config.EmbedArtwork && t.artwork != nil && artworkURL != "" && len(metadata.ArtworkData) == 0 {
		data, mimeType, err := t.artwork.Fetch(ctx, artworkURL, t.config.ArtworkSize)
		if err != nil {
			t.logger.Warn("Artwork unavailable",
				zap.String("url", artworkURL),
				zap.Error(err))
		} else {
			metadata.ArtworkData = data
			metadata.ArtworkMIME = mimeType
		}
	}

	return t.Apply(filePath, metadata)
}

// Apply writes metadata to an audio file (MP3 or FLAC)
func (t *Tagger) Apply(filePath string, metadata *TrackMetadata) error {
	if metadata == nil {
		return fmt.Errorf("metadata cannot be nil")
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return t.applyMP3(filePath, metadata)
	case ".flac":
		return t.applyFLAC(filePath, metadata)
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}
}

func (t *Tagger) applyMP3(filePath string, metadata *TrackMetadata) error {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	if metadata.Title != "" {
		tag.SetTitle(metadata.Title)
	}
	if metadata.Artist != "" {
		tag.SetArtist(metadata.Artist)
	}
	if metadata.Album != "" {
		tag.SetAlbum(metadata.Album)
	}

	if metadata.Comment != "" {
		tag.DeleteFrames(tag.CommonID("Comments"))
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "source",
			Text:        metadata.Comment,
		})
	}

	if t.config.EmbedArtwork && len(metadata.ArtworkData) > 0 {
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    artworkMIME(metadata.ArtworkMIME),
			PictureType: id3v2.PTFrontCover,
			Description: "Front Cover",
			Picture:     metadata.ArtworkData,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save MP3 metadata: %w", err)
	}
	return nil
}

func (t *Tagger) applyFLAC(filePath string, metadata *TrackMetadata) error {
	f, err := flac.ParseFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	var cmtBlock *flac.MetaDataBlock
	for _, block := range f.Meta {
		if block.Type == flac.VorbisComment {
			cmtBlock = block
			break
		}
	}
	if cmtBlock == nil {
		cmtBlock = &flac.MetaDataBlock{Type: flac.VorbisComment}
		f.Meta = append(f.Meta, cmtBlock)
	}

	cmt, err := flacvorbis.ParseFromMetaDataBlock(*cmtBlock)
	if err != nil {
		cmt = flacvorbis.New()
	}

	setVorbis(cmt, "TITLE", metadata.Title)
	setVorbis(cmt, "ARTIST", metadata.Artist)
	setVorbis(cmt, "ALBUM", metadata.Album)
	setVorbis(cmt, "COMMENT", metadata.Comment)

	res := cmt.Marshal()
	cmtBlock.Data = res.Data

	if t.config.EmbedArtwork && len(metadata.ArtworkData) > 0 {
		kept := f.Meta[:0]
		for _, block := range f.Meta {
			if block.Type != flac.Picture {
				kept = append(kept, block)
			}
		}
		f.Meta = append(kept, &flac.MetaDataBlock{
			Type: flac.Picture,
			Data: flacPictureBlock(metadata.ArtworkData, artworkMIME(metadata.ArtworkMIME)),
		})
	}

	if err := f.Save(filePath); err != nil {
		return fmt.Errorf("failed to save FLAC file: %w", err)
	}
	return nil
}

// setVorbis replaces every comment named key with a single value
func setVorbis(cmt *flacvorbis.MetaDataBlockVorbisComment, key, value string) {
	if value == "" {
		return
	}
	kept := cmt.Comments[:0]
	for _, c := range cmt.Comments {
		name, _, _ := strings.Cut(c, "=")
		if !strings.EqualFold(name, key) {
			kept = append(kept, c)
		}
	}
	cmt.Comments = kept
	_ = cmt.Add(key, value)
}

// flacPictureBlock encodes a METADATA_BLOCK_PICTURE front cover. Width,
// height and colour fields are left zero for the decoder to determine.
func flacPictureBlock(imageData []byte, mimeType string) []byte {
	const description = "Front Cover"

	data := make([]byte, 0, 32+len(mimeType)+len(description)+len(imageData))
	data = binary.BigEndian.AppendUint32(data, 3)
	data = binary.BigEndian.AppendUint32(data, uint32(len(mimeType)))
	data = append(data, mimeType...)
	data = binary.BigEndian.AppendUint32(data, uint32(len(description)))
	data = append(data, description...)
	for range 4 {
		data = binary.BigEndian.AppendUint32(data, 0)
	}
	data = binary.BigEndian.AppendUint32(data, uint32(len(imageData)))
	return append(data, imageData...)
}

func artworkMIME(mimeType string) string {
	if mimeType == "" {
		return "image/jpeg"
	}
	return mimeType
}

// Read reads the tags back from an audio file
func Read(filePath string) (*TrackMetadata, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return readMP3(filePath)
	case ".flac":
		return readFLAC(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func readMP3(filePath string) (*TrackMetadata, error) {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	metadata := &TrackMetadata{
		Title:  tag.Title(),
		Artist: tag.Artist(),
		Album:  tag.Album(),
	}

	if frames := tag.GetFrames(tag.CommonID("Comments")); len(frames) > 0 {
		if cf, ok := frames[0].(id3v2.CommentFrame); ok {
			metadata.Comment = cf.Text
		}
	}
	if frames := tag.GetFrames(tag.CommonID("Attached picture")); len(frames) > 0 {
		if pf, ok := frames[0].(id3v2.PictureFrame); ok {
			metadata.ArtworkData = pf.Picture
			metadata.ArtworkMIME = pf.MimeType
		}
	}

	return metadata, nil
}

func readFLAC(filePath string) (*TrackMetadata, error) {
	f, err := flac.ParseFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	metadata := &TrackMetadata{}
	for _, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue
		}
		metadata.Title = firstVorbis(cmt, "TITLE")
		metadata.Artist = firstVorbis(cmt, "ARTIST")
		metadata.Album = firstVorbis(cmt, "ALBUM")
		metadata.Comment = firstVorbis(cmt, "COMMENT")
		break
	}

	return metadata, nil
}

func firstVorbis(cmt *flacvorbis.MetaDataBlockVorbisComment, key string) string {
	if values, err := cmt.Get(key); err == nil && len(values) > 0 {
		return values[0]
	}
	return ""
}
