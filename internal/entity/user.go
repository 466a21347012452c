package entity

type User struct {
	Base

	Name string
}

func (User) TableName() string {
	return "users"
}
