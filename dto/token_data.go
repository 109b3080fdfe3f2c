package dto

// TokenData is the set of placeholders available to campaign templates.
type TokenData struct {
	Name           string
	FirstName      string
	Email          string
	Company        string
	ClientCompany  string
	Service        string
	CompanyName    string
	CompanyWebsite string
	CompanyPhone   string
	CompanyAddress string
	CompanyLogo    string
	SenderName     string
	SenderEmail    string
}

func (t TokenData) Bindings() map[string]interface{} {
	return map[string]interface{}{
		"name":           t.Name,
		"firstName":      t.FirstName,
		"email":          t.Email,
		"company":        t.Company,
		"clientCompany":  t.ClientCompany,
		"service":        t.Service,
		"companyName":    t.CompanyName,
		"companyWebsite": t.CompanyWebsite,
		"companyPhone":   t.CompanyPhone,
		"companyAddress": t.CompanyAddress,
		"companyLogo":    t.CompanyLogo,
		"senderName":     t.SenderName,
		"senderEmail":    t.SenderEmail,
	}
}
