package upload

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/arloliu/go-smp/logger"
	"github.com/arloliu/go-smp/mcumgr"
	"github.com/arloliu/go-smp/smp"
)

// Image group command IDs.
const (
	CmdState  uint8 = 0
	CmdUpload uint8 = 1
	CmdErase  uint8 = 5
)

const (
	// chunkOverheadMargin covers the growth of the CBOR length prefixes of data between the
	// one byte probe and a full chunk.
	chunkOverheadMargin = 5
	coapOverheadMargin  = 25
)

// Image is one firmware image to upload.
type Image struct {
	// Image is the image number on the device, 0 for the application core.
	Image int
	Data  []byte
}

// Status is the status of an Uploader.
type Status uint8

const (
	StatusIdle Status = iota
	StatusUploading
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusUploading:
		return "uploading"
	case StatusPaused:
		return "paused"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

type uploadRequest struct {
	Data    []byte `cbor:"data"`
	Off     uint64 `cbor:"off"`
	Len     uint64 `cbor:"len,omitempty"`
	Image   int    `cbor:"image,omitempty"`
	SHA     []byte `cbor:"sha,omitempty"`
	Upgrade bool   `cbor:"upgrade,omitempty"`
}

type uploadResponse struct {
	Off   *uint64 `cbor:"off"`
	Match *bool   `cbor:"match"`
}

type imageState struct {
	Image
	size uint64
	sha  []byte
}

// Uploader streams firmware images to a device through the image management group.
//
// Chunks are pipelined: up to the configured depth of them are in flight, and the offsets the
// device reports steer what is sent next. Only one upload runs at a time.
type Uploader struct {
	mgr    *mcumgr.Manager
	os     *mcumgr.OS
	cfg    *Config
	logger logger.Logger

	mu           sync.Mutex
	status       Status
	gen          uint64
	images       []imageState
	index        int
	pipeline     *Pipeline
	firstPending bool
	uploaded     *bitset.BitSet
	done         chan struct{}
	err          error
}

// NewUploader creates an Uploader sending through mgr.
func NewUploader(mgr *mcumgr.Manager, opts ...Option) (*Uploader, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return NewUploaderWithConfig(mgr, cfg)
}

// NewUploaderWithConfig is like NewUploader with a prepared configuration.
func NewUploaderWithConfig(mgr *mcumgr.Manager, cfg *Config) (*Uploader, error) {
	if mgr == nil {
		return nil, ErrManagerNil
	}
	if cfg == nil {
		return nil, ErrUploadConfigNil
	}

	return &Uploader{
		mgr:      mgr,
		os:       mcumgr.NewOS(mgr),
		cfg:      cfg,
		logger:   logger.WithCategory(cfg.logger, logger.CategoryUpload),
		uploaded: bitset.New(0),
	}, nil
}

// Status returns the current status.
func (u *Uploader) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.status
}

// Uploaded returns the indexes of the images of the last upload the device fully confirmed.
func (u *Uploader) Uploaded() []int {
	u.mu.Lock()
	defer u.mu.Unlock()

	idx := make([]int, 0, u.uploaded.Count())
	for i, ok := u.uploaded.NextSet(0); ok; i, ok = u.uploaded.NextSet(i + 1) {
		idx = append(idx, int(i))
	}

	return idx
}

// Upload uploads images and waits for the outcome. The upload is canceled when ctx is done.
func (u *Uploader) Upload(ctx context.Context, images []Image) error {
	if err := u.Start(ctx, images); err != nil {
		return err
	}

	err := u.Wait(ctx)
	if ctx.Err() != nil {
		u.Cancel()
	}

	return err
}

// Start begins uploading images and returns once the first chunk is sent.
//
// When device parameters are enabled Start first reads them, bounded by ctx, to clamp the
// pipeline depth. Start must not be called from a callback of the Manager.
func (u *Uploader) Start(ctx context.Context, images []Image) error {
	if len(images) == 0 {
		return ErrNothingToUpload
	}

	states := make([]imageState, 0, len(images))
	for i, img := range images {
		if len(img.Data) == 0 {
			return fmt.Errorf("%w: image %d is empty", ErrInvalidData, i)
		}

		sum := sha256.Sum256(img.Data)
		states = append(states, imageState{Image: img, size: uint64(len(img.Data)), sha: sum[:]})
	}

	if u.Status() != StatusIdle {
		return ErrUploadInProgress
	}

	depth, bufferSize := u.negotiate(ctx)

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.status != StatusIdle {
		return ErrUploadInProgress
	}

	for i := range states {
		if _, err := u.chunkLength(&states[i], 0, bufferSize); err != nil {
			return err
		}
	}

	u.gen++
	u.images = states
	u.index = 0
	u.err = nil
	u.uploaded.ClearAll()
	u.pipeline = NewPipeline(depth, bufferSize)
	u.done = make(chan struct{})
	u.status = StatusUploading

	u.logger.Info("upload started", "images", len(states), "depth", depth, "buffer_size", bufferSize)
	u.sendFirstLocked()

	return nil
}

// Wait blocks until the running upload ends or ctx is done, and returns the upload error.
// Wait returns nil right away if no upload was ever started.
func (u *Uploader) Wait(ctx context.Context) error {
	u.mu.Lock()
	done := u.done
	u.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		u.mu.Lock()
		defer u.mu.Unlock()

		return u.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause stops issuing chunks. Chunks already in flight are still accounted for.
func (u *Uploader) Pause() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.status == StatusUploading {
		u.status = StatusPaused
		u.logger.Info("upload paused", "image", u.index, "offset", u.pipeline.LastReceivedOffset())
	}
}

// Resume continues a paused upload from the last offset the device confirmed.
func (u *Uploader) Resume() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.status != StatusPaused {
		return
	}
	u.status = StatusUploading
	u.logger.Info("upload resumed", "image", u.index, "offset", u.pipeline.LastReceivedOffset())

	if u.firstPending {
		return
	}

	img := &u.images[u.index]
	if u.pipeline.LastReceivedOffset() >= img.size {
		if u.pipeline.AllPacketsReceived() {
			u.advanceLocked()
		}

		return
	}
	u.pipeline.Send(img.size, u.sendChunkLocked)
}

// Cancel ends the running upload with ErrCanceled. Responses still in flight are ignored.
func (u *Uploader) Cancel() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.status != StatusIdle {
		u.finishLocked(ErrCanceled)
	}
}

// negotiate returns the pipeline depth and chunk size limit for the next upload.
func (u *Uploader) negotiate(ctx context.Context) (int, int) {
	depth := u.cfg.pipelineDepth
	bufferSize := u.cfg.reassemblyBufferSize
	if bufferSize == 0 {
		bufferSize = u.mgr.MTU()
	}

	if !u.cfg.readParams {
		return depth, bufferSize
	}

	params, err := u.os.Params(ctx)
	if err != nil {
		u.logger.Warn("device parameters unavailable, keeping configured pipeline", "error", err)
		return depth, bufferSize
	}

	if params.BufCount > 1 {
		depth = min(depth, int(params.BufCount)-1)
	} else {
		depth = 1
	}
	if u.cfg.reassemblyBufferSize > 0 && params.BufSize > 0 {
		bufferSize = min(bufferSize, int(params.BufSize))
	}
	u.logger.Debug("device parameters", "buf_size", params.BufSize, "buf_count", params.BufCount, "depth", depth)

	return depth, bufferSize
}

// request builds the upload request of the chunk of img at offset.
func (u *Uploader) request(img *imageState, offset uint64, data []byte) uploadRequest {
	req := uploadRequest{Data: data, Off: offset}
	if offset == 0 {
		req.Len = img.size
		req.SHA = img.sha
		req.Image = img.Image.Image
		req.Upgrade = u.cfg.upgrade
	}

	return req
}

// chunkLength returns the number of data bytes of the chunk of img at offset.
func (u *Uploader) chunkLength(img *imageState, offset uint64, bufferSize int) (int, error) {
	scheme := u.mgr.Transport().Scheme()
	probe, err := smp.BuildPacket(scheme, u.mgr.Version(), smp.OpWrite, u.mgr.Config().Flags(),
		smp.GroupImage, 0, CmdUpload, u.request(img, offset, []byte{0}))
	if err != nil {
		return 0, err
	}

	overhead := len(probe) + chunkOverheadMargin
	if scheme.IsCoap() {
		overhead += coapOverheadMargin
	}

	maxData := bufferSize - overhead
	remaining := img.size - offset
	if align := int(u.cfg.alignment); align > 1 && uint64(maxData) < remaining {
		maxData -= maxData % align
	}
	if maxData <= 0 {
		return 0, fmt.Errorf("%w: %d bytes leave no room for image data", smp.ErrInsufficientMTU, bufferSize)
	}

	return int(min(uint64(maxData), remaining)), nil
}

func (u *Uploader) sendFirstLocked() {
	u.pipeline.Reset()
	u.firstPending = true
	u.sendChunkLocked(0)
}

// sendChunkLocked sends the chunk at offset of the current image and returns the offset the
// device reports once it stored it.
func (u *Uploader) sendChunkLocked(offset uint64) uint64 {
	img := &u.images[u.index]

	n, err := u.chunkLength(img, offset, u.pipeline.BufferSize())
	if err != nil {
		u.finishLocked(err)
		return img.size
	}

	timeout := u.cfg.chunkTimeout
	if offset == 0 {
		timeout = u.cfg.firstChunkTimeout
	}

	gen := u.gen
	req := u.request(img, offset, img.Data[offset:offset+uint64(n)])
	u.logger.Debug("sending chunk", "image", u.index, "offset", offset, "len", n)
	mcumgr.SendTyped[uploadResponse](u.mgr, smp.OpWrite, smp.GroupImage, CmdUpload, req, timeout,
		func(resp *uploadResponse, err error) {
			u.onResponse(gen, resp, err)
		})

	return offset + uint64(n)
}

func (u *Uploader) onResponse(gen uint64, resp *uploadResponse, err error) {
	u.mu.Lock()
	if gen != u.gen || u.status == StatusIdle {
		u.mu.Unlock()
		return
	}

	progress, ok := u.handleResponseLocked(resp, err)
	fn := u.cfg.progress
	u.mu.Unlock()

	if ok && fn != nil {
		fn(progress)
	}
}

func (u *Uploader) handleResponseLocked(resp *uploadResponse, err error) (Progress, bool) {
	u.firstPending = false
	img := &u.images[u.index]

	switch {
	case err != nil:
		u.finishLocked(err)
		return Progress{}, false
	case resp.Match != nil && !*resp.Match:
		u.finishLocked(&OffsetMismatchError{Image: u.index, Offset: u.pipeline.LastReceivedOffset()})
		return Progress{}, false
	case resp.Off == nil:
		u.finishLocked(ErrInvalidPayload)
		return Progress{}, false
	case *resp.Off > img.size:
		u.finishLocked(&OffsetMismatchError{Image: u.index, Offset: *resp.Off})
		return Progress{}, false
	}

	off := *resp.Off
	u.pipeline.Received(off)
	progress := Progress{
		Image:     u.index,
		Images:    len(u.images),
		Offset:    u.pipeline.LastReceivedOffset(),
		Size:      img.size,
		Timestamp: time.Now(),
	}

	if u.status != StatusUploading {
		return progress, true
	}

	if off == img.size {
		if u.pipeline.AllPacketsReceived() {
			u.advanceLocked()
		}

		return progress, true
	}
	u.pipeline.Send(img.size, u.sendChunkLocked)

	return progress, true
}

// advanceLocked completes the current image and moves to the next one, or ends the upload.
func (u *Uploader) advanceLocked() {
	u.uploaded.Set(uint(u.index))
	u.logger.Info("image uploaded", "image", u.index, "size", u.images[u.index].size)

	if u.index == len(u.images)-1 {
		u.finishLocked(nil)
		return
	}
	u.index++
	u.sendFirstLocked()
}

func (u *Uploader) finishLocked(err error) {
	if u.status == StatusIdle {
		return
	}

	u.status = StatusIdle
	u.err = err
	close(u.done)

	if err != nil {
		u.logger.Error("upload failed", "image", u.index, "error", err)
	} else {
		u.logger.Info("upload finished", "images", len(u.images))
	}
}
