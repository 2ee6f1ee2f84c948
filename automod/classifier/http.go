package classifier

import (
	"net/http"

	"github.com/carlmjohnson/versioninfo"
)

type userAgentDoer struct {
	inner *http.Client
}

func (d *userAgentDoer) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "warden/"+versioninfo.Short())
	return d.inner.Do(req)
}
