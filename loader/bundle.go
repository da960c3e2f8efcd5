package loader

import (
	"archive/tar"
	"bytes"
	"io"
	"io/ioutil"
	"path"
	"strings"

	"github.com/evanphx/mosk/exec"
	"github.com/pkg/errors"
)

// BundleSuffix marks the archive members that hold program source.
const BundleSuffix = ".s"

func bundleName(name string) string {
	if len(name) > 2 && name[:2] == "./" {
		name = name[2:]
	}

	if len(name) >= 1 && name[0] == '/' {
		name = name[1:]
	}

	return name
}

// LoadBundle assembles every program in a tar archive, in archive order.
// Directories and members without BundleSuffix are skipped.
func (l *Loader) LoadBundle(r io.Reader) ([]*exec.Program, error) {
	tr := tar.NewReader(r)

	var progs []*exec.Program

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, errors.Wrapf(err, "reading bundle")
		}

		name := bundleName(hdr.Name)

		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(name, BundleSuffix) {
			l.L.Trace("skipping bundle member", "name", hdr.Name)
			continue
		}

		data, err := ioutil.ReadAll(tr)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s from bundle", name)
		}

		prog, err := l.Load(path.Base(name), bytes.NewReader(data))
		if err != nil {
			return nil, err
		}

		progs = append(progs, prog)
	}

	return progs, nil
}
