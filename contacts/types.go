package contacts

type Contact struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	Consent bool   `json:"consent"`
}

// Input is a contact without its server-assigned ID.
type Input struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	Consent bool   `json:"consent"`
}

// Filter matches contacts field by field; nil fields are ignored.
type Filter struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Subject *string `json:"subject,omitempty"`
	Message *string `json:"message,omitempty"`
	Consent *bool   `json:"consent,omitempty"`
}

type SortField string

const (
	SortName    SortField = "name"
	SortEmail   SortField = "email"
	SortPhone   SortField = "phone"
	SortSubject SortField = "subject"
	SortMessage SortField = "message"
	SortConsent SortField = "consent"
)

type Order string

const (
	Asc  Order = "ASC"
	Desc Order = "DESC"
)

type Sort struct {
	Field SortField `json:"field"`
	Order Order     `json:"order"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Query narrows a List call. The zero value lists everything with the
// server's default ordering and page size.
type Query struct {
	Filter     *Filter
	Sort       *Sort
	Pagination *Pagination
}

func (q Query) variables() map[string]any {
	vars := map[string]any{}
	if q.Filter != nil {
		vars["filter"] = q.Filter
	}
	if q.Sort != nil {
		vars["sort"] = q.Sort
	}
	if q.Pagination != nil {
		vars["pagination"] = q.Pagination
	}
	return vars
}

// Page is one page of a List result.
type Page struct {
	Contacts   []Contact `json:"contacts"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"totalPages"`
}

// response envelopes of each operation's data field
type (
	listData struct {
		Contacts Page `json:"contacts"`
	}
	getData struct {
		Contact *Contact `json:"contact"`
	}
	addData struct {
		AddContact Contact `json:"addContact"`
	}
	updateData struct {
		UpdateContact Contact `json:"updateContact"`
	}
	deleteData struct {
		DeleteContact bool `json:"deleteContact"`
	}
)
