package errors

var (
	ErrEmptyMessage       = InvalidArg("message needs content or media")
	ErrSelfMessage        = InvalidArg("cannot send a message to yourself")
	ErrInvalidUserID      = InvalidArg("invalid user id")
	ErrInvalidPostID      = InvalidArg("invalid post id")
	ErrInvalidCursor      = InvalidArg("invalid lastOffset")
	ErrMissingRepostID    = InvalidArg("postId can't be empty for repost")
	ErrEmptyPost          = InvalidArg("no content provided for post")
	ErrEmptyComment       = InvalidArg("comment content can't be empty")
	ErrInvalidPostType    = InvalidArg("post_type must be thread or repost")
	ErrMissingAvatar      = InvalidArg("profile picture file is required")
	ErrAvatarNotImage     = InvalidArg("profile picture must be an image")
	ErrUserNotFound       = NotFound("user not found")
	ErrPostNotFound       = NotFound("post not found")
	ErrChannelNotFound    = NotFound("channel not found")
	ErrNotPostOwner       = Unauthorized("you are not allowed to do this action")
	ErrInvalidCredentials = Unauthorized("invalid email or password")
	ErrEmailTaken         = AlreadyExists("email or username already registered")
	ErrInvalidBody        = InvalidArg("invalid request body")
	ErrBodyTooLarge       = New(CodeTooLarge, "request body too large")
)

func ErrMediaUpload(cause error) error {
	return Upstream("failed to store media", cause)
}

func ErrStorage(cause error) error {
	return Upstream("storage failure", cause)
}
