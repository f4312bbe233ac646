package domain

type UserID = uint
type FileID = uint
