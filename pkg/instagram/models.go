package instagram

// Wire-level response shapes. Only the fields the crawler consumes are
// declared; the API returns far more. Count fields are pointers so that a
// field absent from the payload stays distinguishable from zero.

// webProfileResponse is the shape of the web_profile_info lookup used to
// resolve a handle to its opaque user id.
type webProfileResponse struct {
	Data struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"data"`
	Status string `json:"status"`
}

// graphQLError is one entry of the top-level errors array.
type graphQLError struct {
	Message string `json:"message"`
}

type profileData struct {
	User *profileUser `json:"user"`
}

type profileUser struct {
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	Biography      string `json:"biography"`
	IsPrivate      bool   `json:"is_private"`
	IsBusiness     bool   `json:"is_business"`
	Category       string `json:"category"`
	ExternalURL    string `json:"external_url"`
	FollowerCount  *int64 `json:"follower_count"`
	FollowingCount *int64 `json:"following_count"`
	MediaCount     *int64 `json:"media_count"`
}

type postsData struct {
	Timeline *timelineConnection `json:"xdt_api__v1__feed__user_timeline_graphql_connection"`
}

type timelineConnection struct {
	Edges []postEdge `json:"edges"`
}

type postEdge struct {
	Node postNode `json:"node"`
}

// postNode carries one timeline entry. MediaType 2 is video; everything
// else is treated as a photo.
type postNode struct {
	Code           string `json:"code"`
	MediaType      int    `json:"media_type"`
	LikeCount      int64  `json:"like_count"`
	CommentCount   int64  `json:"comment_count"`
	ImageVersions2 struct {
		Candidates []struct {
			URL string `json:"url"`
		} `json:"candidates"`
	} `json:"image_versions2"`
}

type highlightsData struct {
	Highlights *highlightsTray `json:"highlights"`
}

type highlightsTray struct {
	Edges []highlightEdge `json:"edges"`
}

type highlightEdge struct {
	Node highlightNode `json:"node"`
}

type highlightNode struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	CoverMedia struct {
		CroppedImageVersion struct {
			URL string `json:"url"`
		} `json:"cropped_image_version"`
	} `json:"cover_media"`
}
