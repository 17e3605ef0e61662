/*
Package delivery hands export archives to the storage that publishes
them and confirms that they are available.
*/
package delivery

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/logging"
)

var log = logging.NewLogger("delivery")

// Deliverer uploads artifacts and reports the HTTP status of published
// artifacts.
type Deliverer interface {
	Upload(ctx context.Context, localPath, name, suffix string) (string, error)
	HeadStatus(ctx context.Context, url string) (int, error)
}

// HTTPHead checks the availability of published URLs with HEAD
// requests.
type HTTPHead struct {
	client *http.Client
}

func NewHTTPHead(timeout time.Duration) *HTTPHead {
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: timeout,
	}
	return &HTTPHead{client: client}
}

func (h *HTTPHead) HeadStatus(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "creating HEAD request for %s", url)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "HEAD %s", url)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Local publishes artifacts by copying them into Dir, which is served
// under BaseURL. Without a Checker, availability is checked on the
// file system.
type Local struct {
	Dir     string
	BaseURL string
	Checker *HTTPHead
}

func (l *Local) Upload(ctx context.Context, localPath, name, suffix string) (string, error) {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating %s", l.Dir)
	}
	fileName := name + "." + suffix
	dest := filepath.Join(l.Dir, fileName)
	if err := copyFile(localPath, dest); err != nil {
		return "", err
	}
	return strings.TrimRight(l.BaseURL, "/") + "/" + url.PathEscape(fileName), nil
}

func (l *Local) HeadStatus(ctx context.Context, u string) (int, error) {
	if l.Checker != nil {
		return l.Checker.HeadStatus(ctx, u)
	}
	prefix := strings.TrimRight(l.BaseURL, "/") + "/"
	if !strings.HasPrefix(u, prefix) {
		return http.StatusNotFound, nil
	}
	name, err := url.PathUnescape(strings.TrimPrefix(u, prefix))
	if err != nil || strings.Contains(name, "/") {
		return http.StatusNotFound, nil
	}
	if _, err := os.Stat(filepath.Join(l.Dir, name)); err != nil {
		return http.StatusNotFound, nil
	}
	return http.StatusOK, nil
}

func copyFile(src, dest string) error {
	r, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening %s", src)
	}
	defer r.Close()

	tmp := dest + ".tmp"
	w, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "creating %s", tmp)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "copying to %s", tmp)
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "writing %s", tmp)
	}
	return errors.Wrap(os.Rename(tmp, dest), "publishing artifact")
}
