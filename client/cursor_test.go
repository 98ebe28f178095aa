package client

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkNextMaxID(t *testing.T) {
	cases := []struct {
		name string
		link string
		want string
	}{
		{
			name: "typical pagination header",
			link: `<https://example.com/api/v1/favourites?max_id=83459>; rel="next", <https://example.com/api/v1/favourites?min_id=84321>; rel="prev"`,
			want: "83459",
		},
		{
			name: "prev listed first",
			link: `<https://example.com/api/v1/bookmarks?min_id=100>; rel="prev", <https://example.com/api/v1/bookmarks?max_id=50>; rel="next"`,
			want: "50",
		},
		{
			name: "unquoted rel",
			link: `<https://example.com/api/v1/favourites?max_id=7>; rel=next`,
			want: "7",
		},
		{
			name: "no next relation",
			link: `<https://example.com/api/v1/favourites?min_id=84321>; rel="prev"`,
			want: "",
		},
		{
			name: "next without max_id",
			link: `<https://example.com/api/v1/favourites>; rel="next"`,
			want: "",
		},
		{
			name: "empty header",
			link: "",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			if tc.link != "" {
				header.Set("Link", tc.link)
			}
			assert.Equal(t, tc.want, LinkNextMaxID(header))
		})
	}
}
