package domain

import "github.com/yungbote/datasetagg/internal/domain/datasets"

type Dataset = datasets.Dataset
type Observation = datasets.Observation
type Calculation = datasets.Calculation
