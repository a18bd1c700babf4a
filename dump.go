package netkit

import (
	"fmt"
	"io"
	"sync"
)

// frameDump writes one line per frame:
//
//	R|W:ConnID:Type:Size
type frameDump struct {
	mu sync.Mutex
	w  io.Writer
}

func newFrameDump(w io.Writer) *frameDump {
	if w == nil {
		return nil
	}
	return &frameDump{w: w}
}

func (d *frameDump) record(read bool, id uint32, typ any, size uint32) {
	if d == nil {
		return
	}

	dir := "W"
	if read {
		dir = "R"
	}

	d.mu.Lock()
	fmt.Fprintf(d.w, "%s:%d:%v:%d\n", dir, id, typ, size)
	d.mu.Unlock()
}
