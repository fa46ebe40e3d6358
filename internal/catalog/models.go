package catalog

// Song is one downloadable video and every playlist it belongs to
type Song struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Playlists []string `json:"playlists"`
}

// Playlist is a channel playlist as listed by the Data API
type Playlist struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ItemCount int    `json:"itemCount"`
}

// Item is one playlist entry as listed by the Data API
type Item struct {
	VideoID     string `json:"videoId"`
	Title       string `json:"title"`
	Position    int    `json:"position"`
	Channel     string `json:"channel,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// playlistListResponse mirrors youtube#playlistListResponse
type playlistListResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		ContentDetails struct {
			ItemCount int `json:"itemCount"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type thumbnail struct {
	URL string `json:"url"`
}

// playlistItemListResponse mirrors youtube#playlistItemListResponse
type playlistItemListResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title                  string `json:"title"`
			Position               int    `json:"position"`
			PublishedAt            string `json:"publishedAt"`
			VideoOwnerChannelTitle string `json:"videoOwnerChannelTitle"`
			Thumbnails             struct {
				Default thumbnail `json:"default"`
				Medium  thumbnail `json:"medium"`
				High    thumbnail `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// apiErrorResponse is the error body of a failed Data API call
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}
