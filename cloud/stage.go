/*
Copyright © 2019 the ncedit authors.
This file is part of ncedit.

ncedit is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncedit is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncedit.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// DefaultRetries is the number of times a failed transfer is retried.
const DefaultRetries = 5

// Stager copies blobs to and from a local staging directory.
type Stager struct {
	// Dir is the local staging directory.
	Dir string

	// Retries is the number of times a failed transfer is retried
	// with exponential backoff before giving up.
	Retries uint64

	Log logrus.FieldLogger
}

// NewStager returns a stager that keeps its files in dir.
func NewStager(dir string, log logrus.FieldLogger) *Stager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Stager{Dir: dir, Retries: DefaultRetries, Log: log}
}

// local returns the staging location of the blob at p.
func (s *Stager) local(p string) (string, error) {
	bucket, key, err := split(p)
	if err != nil {
		return "", err
	}
	host := bucket[strings.Index(bucket, "://")+3:]
	return filepath.Join(s.Dir, host, filepath.FromSlash(key)), nil
}

// Local returns the path that an output destined for p should be
// written to: p itself for local paths, or a location in the staging
// directory for blobs. The parent directory is created.
func (s *Stager) Local(p string) (string, error) {
	if !IsBlob(p) {
		return p, nil
	}
	l, err := s.local(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(l), 0755); err != nil {
		return "", fmt.Errorf("cloud: %v", err)
	}
	return l, nil
}

// Fetch downloads the blob at p into the staging directory and returns
// the local path. Local paths are returned unchanged.
func (s *Stager) Fetch(ctx context.Context, p string) (string, error) {
	if !IsBlob(p) {
		return p, nil
	}
	bucketName, key, err := split(p)
	if err != nil {
		return "", err
	}
	l, err := s.Local(p)
	if err != nil {
		return "", err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return "", err
	}
	defer bucket.Close()

	var missing error
	err = s.retry(ctx, p, func() error {
		r, err := bucket.NewReader(ctx, key, nil)
		if gcerrors.Code(err) == gcerrors.NotFound {
			missing = err
			return nil
		} else if err != nil {
			return err
		}
		defer r.Close()
		f, err := os.Create(l)
		if err != nil {
			return err
		}
		if _, err = io.Copy(f, r); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if missing != nil {
		return "", fmt.Errorf("cloud: %s does not exist", p)
	}
	if err != nil {
		return "", fmt.Errorf("cloud: downloading %s: %v", p, err)
	}
	s.Log.WithField("blob", p).Debugf("staged to %s", l)
	return l, nil
}

// Upload copies the local file to the blob at dest. Nothing is done when
// dest is a local path.
func (s *Stager) Upload(ctx context.Context, local, dest string) error {
	if !IsBlob(dest) {
		return nil
	}
	bucketName, key, err := split(dest)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return err
	}
	defer bucket.Close()

	err = s.retry(ctx, dest, func() error {
		f, err := os.Open(local)
		if err != nil {
			return err
		}
		defer f.Close()
		w, err := bucket.NewWriter(ctx, key, nil)
		if err != nil {
			return err
		}
		if _, err = io.Copy(w, f); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	})
	if err != nil {
		return fmt.Errorf("cloud: uploading %s: %v", dest, err)
	}
	s.Log.WithField("blob", dest).Debugf("uploaded from %s", local)
	return nil
}

func (s *Stager) retry(ctx context.Context, p string, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.Retries), ctx)
	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		s.Log.WithField("blob", p).Warnf("%v: retrying in %v", err, d)
	})
}

// List returns the blobs matching pattern, a blob path whose key may
// contain the wildcards understood by path.Match. The results are in
// key order.
func List(ctx context.Context, pattern string) ([]string, error) {
	bucketName, keyPattern, err := split(pattern)
	if err != nil {
		return nil, err
	}
	if _, err := path.Match(keyPattern, ""); err != nil {
		return nil, fmt.Errorf("cloud: invalid pattern %s: %v", pattern, err)
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}
	defer bucket.Close()

	prefix := keyPattern
	if i := strings.IndexAny(prefix, "*?["); i >= 0 {
		prefix = prefix[:i]
	}
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		prefix = prefix[:i+1]
	} else {
		prefix = ""
	}

	var o []string
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cloud: listing %s: %v", pattern, err)
		}
		if obj.IsDir {
			continue
		}
		if ok, _ := path.Match(keyPattern, obj.Key); ok {
			o = append(o, bucketName+"/"+obj.Key)
		}
	}
	return o, nil
}
