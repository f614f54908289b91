// Package wallet содержит ядро кошелька: баланс из двух корзин, журнал,
// почасовое восстановление пакетных токенов и дневные счётчики.
//
// Любое изменение баланса проходит через Service.Update: кошелёк
// блокируется, применяется восстановление, вызывающий меняет баланс
// через Op.Apply, и всё это фиксируется одной транзакцией вместе
// с записями журнала.
package wallet

import (
	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Deltas: изменение каждой корзины со знаком.
type Deltas struct {
	Package     int64
	Independent int64
}

// Mode: как поступать с уходом в минус.
type Mode int

const (
	// ModeStrict отклоняет изменение, если корзина уйдёт в минус.
	ModeStrict Mode = iota
	// ModeClamp обрезает корзину до нуля. Только для административной установки.
	ModeClamp
)

// Transition считает новые значения корзин.
// В строгом режиме при уходе в минус возвращает ErrInsufficientBalance.
func Transition(pkg, ind int64, d Deltas, mode Mode) (int64, int64, error) {
	p := pkg + d.Package
	i := ind + d.Independent
	if mode == ModeClamp {
		return max(p, 0), max(i, 0), nil
	}
	if p < 0 || i < 0 {
		return pkg, ind, common.ErrInsufficientBalance
	}
	return p, i, nil
}

// PlanSpend раскладывает списание по корзинам: сначала пакетные
// токены, остаток из независимых.
func PlanSpend(pkg, ind, amount int64) (Deltas, error) {
	if amount <= 0 {
		return Deltas{}, common.Validation("сумма списания должна быть положительной")
	}
	if pkg+ind < amount {
		return Deltas{}, common.ErrInsufficientCredits
	}
	fromPkg := min(pkg, amount)
	return Deltas{Package: -fromPkg, Independent: -(amount - fromPkg)}, nil
}

// bucketOf определяет корзину записи. Нулевое изменение относится
// к корзине, которую операция затрагивает по смыслу.
func bucketOf(d Deltas, reason models.Reason) models.Bucket {
	switch {
	case d.Package != 0 && d.Independent != 0:
		return models.BucketMixed
	case d.Package != 0:
		return models.BucketPackage
	case d.Independent != 0:
		return models.BucketIndependent
	}
	switch reason {
	case models.ReasonManualReset, models.ReasonPackageRenewal:
		return models.BucketPackage
	}
	return models.BucketIndependent
}
