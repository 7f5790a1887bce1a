package dto

// User is an entry of a users.get response.
type User struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	ScreenName  string `json:"screen_name"`
	Deactivated string `json:"deactivated"` // "deleted" or "banned" when set
	IsClosed    bool   `json:"is_closed"`
}
