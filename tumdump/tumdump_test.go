package tumdump

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/unnamed2/tailor/odometry"
	"github.com/unnamed2/tailor/spatialmath"
)

func TestWriteProducesCRLFTUMLines(t *testing.T) {
	dir := t.TempDir()
	traj := odometry.Trajectory{
		{Stamp: time.Unix(10, 0), Pose: spatialmath.Identity().ToMatrix()},
		{Stamp: time.Unix(11, 0), Pose: spatialmath.Transform{X: 1}.ToMatrix()},
	}

	err := Write(dir, traj)
	test.That(t, err, test.ShouldBeNil)

	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 1)

	contents, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	test.That(t, err, test.ShouldBeNil)

	lines := strings.Split(string(contents), "\r\n")
	test.That(t, len(lines), test.ShouldEqual, 3) // two lines plus trailing empty
	fields := strings.Fields(lines[0])
	test.That(t, len(fields), test.ShouldEqual, 8)
}

func TestWriteRejectsEmptyTrajectory(t *testing.T) {
	err := Write(t.TempDir(), nil)
	test.That(t, err, test.ShouldNotBeNil)
}
