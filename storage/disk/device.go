package disk

import (
	"fmt"
	"path/filepath"

	"github.com/HayatoShiba/ppkernel/common"
)

// devicePath returns the image file path of the device under dir.
// the path of each device image is
// - dir/dev<device number>.img
func devicePath(dir string, dev common.Device) string {
	return filepath.Join(dir, fmt.Sprintf("dev%d.img", dev))
}
