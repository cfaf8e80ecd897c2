package window

// OHLCBuffer keeps parallel rolling histories of close, high, low and
// volume, all of identical length. Quote ticks feed every series; LTP ticks
// feed only the close series via the embedded Buffer.
type OHLCBuffer struct {
	Close  *Buffer
	High   *Buffer
	Low    *Buffer
	Volume *Buffer
}

// NewOHLC creates parallel buffers of the given capacity.
func NewOHLC(capacity int) *OHLCBuffer {
	return &OHLCBuffer{
		Close:  New(capacity),
		High:   New(capacity),
		Low:    New(capacity),
		Volume: New(capacity),
	}
}

// PushQuote appends one quote bar to all four series and returns the evicted
// close value, if any.
func (o *OHLCBuffer) PushQuote(high, low, close float64, volume int64) (evicted float64, ok bool) {
	o.High.Push(high)
	o.Low.Push(low)
	o.Volume.Push(float64(volume))
	return o.Close.Push(close)
}
