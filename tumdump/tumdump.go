// Package tumdump writes a trajectory in the TUM trajectory file format.
package tumdump

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/unnamed2/tailor/odometry"
	"github.com/unnamed2/tailor/spatialmath"
)

// Write renders traj in TUM format ("timestamp tx ty tz qx qy qz qw" per
// line, CRLF line endings) to a file named "<unix-seconds>.txt" under dir.
func Write(dir string, traj odometry.Trajectory) error {
	if len(traj) == 0 {
		return errors.New("tumdump: empty trajectory, nothing to save")
	}

	var b strings.Builder
	for _, entry := range traj {
		tr, err := spatialmath.FromMatrix(entry.Pose)
		if err != nil {
			return errors.Wrap(err, "tumdump: decomposing trajectory pose")
		}
		q := tr.Quaternion()

		fmt.Fprintf(&b, "%f %f %f %f %f %f %f %f\r\n",
			float64(entry.Stamp.UnixNano())/1e9,
			tr.X, tr.Y, tr.Z,
			q.Imag, q.Jmag, q.Kmag, q.Real,
		)
	}

	name := filepath.Join(dir, fmt.Sprintf("%d.txt", time.Now().Unix()))
	if err := os.WriteFile(name, []byte(b.String()), 0o644); err != nil {
		return errors.Wrap(err, "tumdump: writing trajectory file")
	}
	return nil
}
